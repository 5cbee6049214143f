package throughput

import "bytes"

// AD type of the Complete Local Name record.
const adTypeCompleteLocalName = 0x09

// MatchesName walks the length-prefixed AD records in data and reports whether a
// Complete Local Name record carries exactly name.
//
// A zero length byte is an empty record and is stepped over. A record whose
// declared length runs past the end of data stops the walk without a match.
func MatchesName(data []byte, name string) bool {
	want := []byte(name)
	for i := 0; i < len(data); {
		length := int(data[i])
		if length == 0 {
			i++
			continue
		}
		end := i + 1 + length
		if end > len(data) {
			return false
		}
		if data[i+1] == adTypeCompleteLocalName && bytes.Equal(data[i+2:end], want) {
			return true
		}
		i = end
	}
	return false
}

// BuildADRecord encodes one AD record; payloads longer than 254 bytes are truncated.
func BuildADRecord(adType byte, payload []byte) []byte {
	if len(payload) > 254 {
		payload = payload[:254]
	}
	rec := make([]byte, 0, len(payload)+2)
	rec = append(rec, byte(len(payload)+1), adType)
	return append(rec, payload...)
}

// CompleteLocalName encodes a Complete Local Name AD record.
func CompleteLocalName(name string) []byte {
	return BuildADRecord(adTypeCompleteLocalName, []byte(name))
}
