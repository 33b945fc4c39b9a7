package cmn

import (
	"time"

	"github.com/teris-io/shortid"
)

// shortIDAlphabet is a 64-character permutation shortid.MustNew requires,
// matching the teacher's own cmn/shortid.go alphabet.
const shortIDAlphabet = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

// shortGen mints short, human-readable ids for things this module never
// looks up by id again — a node's fallback identity — as opposed to spec.md §3's durable "<prefix>-<uuid>" object
// ids, which must stay RFC4122 (see NewUUID). Grounded on the teacher's
// cmn/shortid.go GenUUID, without its worker/tie-break plumbing, since
// this module has no daemon-set-wide id space to desynchronize across
// processes.
var shortGen = shortid.MustNew(1, shortIDAlphabet, uint64(time.Now().UnixNano()))

// NewShortID mints a short id with prefix, e.g. NewShortID("node") might
// return "node-8hJ3kLm".
func NewShortID(prefix string) string {
	return prefix + "-" + shortGen.MustGenerate()
}
