package swim

import (
	"encoding/hex"

	"github.com/oklog/ulid/v2"
)

// comparable
// ids are ulids, so ids made by the same process are ordered by create time
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}

// short form for log lines
func (self Id) Short() string {
	return hex.EncodeToString(self[10:16])
}
