package journal

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"lukechampine.com/blake3"
)

// ErrChainBroken reports a journal whose digest chain does not verify.
var ErrChainBroken = errors.New("journal: digest chain broken")

const digestDomain = "lendledger/journal/v1"

// entryDigest chains e to the digest of its predecessor. CreatedAt and the
// row ID are excluded so the chain only covers ledger facts.
func entryDigest(prev string, e *Entry) string {
	buf := new(bytes.Buffer)
	writeField(buf, []byte(digestDomain))
	writeField(buf, []byte(prev))
	var scratch [8]byte
	for _, v := range []uint64{e.Seq, e.LoanID, e.Height} {
		binary.BigEndian.PutUint64(scratch[:], v)
		buf.Write(scratch[:])
	}
	for _, s := range []string{e.Type, e.Caller, e.Borrower, e.Amount, e.Collateral, e.Interest, e.Param, e.Value} {
		writeField(buf, []byte(s))
	}
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func writeField(buf *bytes.Buffer, data []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])
	buf.Write(data)
}

// Verify walks the journal in sequence order and recomputes every digest.
func (j *Journal) Verify(ctx context.Context) (uint64, error) {
	var (
		prev    string
		checked uint64
		filter  = Filter{Limit: maxListLimit}
	)
	for {
		page, err := j.List(ctx, filter)
		if err != nil {
			return checked, err
		}
		for i := range page {
			e := &page[i]
			if e.Seq != checked+1 {
				return checked, fmt.Errorf("%w: expected seq %d, found %d", ErrChainBroken, checked+1, e.Seq)
			}
			if want := entryDigest(prev, e); e.Digest != want {
				return checked, fmt.Errorf("%w: seq %d digest mismatch", ErrChainBroken, e.Seq)
			}
			prev = e.Digest
			checked++
		}
		if len(page) < maxListLimit {
			return checked, nil
		}
		filter.AfterSeq = page[len(page)-1].Seq
	}
}
