// Package util provides small helpers shared by database implementations that
// satisfy the db.KVDB interface: random seeds, the FNV-1a string hash used for
// shard selection and replica ids, the wall clock used for entry deadlines and
// shard distribution statistics reported by GetInfo.
package util
