// Package serializer turns common.Message values into bytes and back.
//
// Three formats are available and New picks one by name:
//
//   - binary: a compact custom format. A type byte and a 16 bit field mask are
//     followed by the present fields only. Lists carry an element count and nil
//     entries in Values keep a marker length, so missing and empty values stay
//     distinct. This is the default of the CLI and the provider.
//
//   - json: readable on the wire and handy when debugging with curl against the
//     http transport.
//
//   - gob: Go's own encoding. It works but is the slowest and largest of the three.
//
// Deserialize always resets the target message first, so a Message can be reused
// across calls. All implementations are stateless and safe for concurrent use.
//
//	s, _ := serializer.New("binary")
//	data, err := s.Serialize(*common.NewGetRequest("users_1"))
//	var resp common.Message
//	err = s.Deserialize(reply, &resp)
package serializer
