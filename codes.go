package radiosession

// replyCodeTable maps a reply code to a human description. The radio's own
// firmware error codes are not published in full; this is the subset
// observed across the protocol family plus a fallback for anything unknown.
// Grounded on the teacher's static lookup-table idiom (radiod.go's status
// tag constants) generalized from binary tags to reply codes.
var replyCodeTable = map[uint32]string{
	0x00: "ok",
	0x01: "unknown command",
	0x02: "invalid argument",
	0x03: "missing argument",
	0x04: "value out of range",
	0x05: "entity not found",
	0x06: "permission denied",
	0x07: "not supported by firmware",
	0x08: "resource busy",
	0x09: "internal error",
}

// describeCode returns the static description for a reply code, or a
// generic fallback if the code is not in the known table. Unknown codes are
// still surfaced to the caller (command-rejected carries the raw message
// too), so a missing table entry never hides the failure.
func describeCode(code uint32) string {
	if d, ok := replyCodeTable[code]; ok {
		return d
	}
	return "unrecognized reply code"
}
