package badger

import (
	"errors"
	"math"
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/threatgraph/core"
)

var errCorruptValue = errors.New("corrupt stored value")

// encoder writes mus-encoded fields into a pre-sized buffer.
type encoder struct {
	bs []byte
	n  int
}

func (e *encoder) str(v string) { e.n += ord.String.Marshal(v, e.bs[e.n:]) }
func (e *encoder) uint(v uint64) { e.n += varint.Uint64.Marshal(v, e.bs[e.n:]) }
func (e *encoder) int(v int64) { e.n += varint.Int64.Marshal(v, e.bs[e.n:]) }
func (e *encoder) float(v float64) { e.uint(math.Float64bits(v)) }
func (e *encoder) time(v time.Time) { e.int(timeToMicros(v)) }
func (e *encoder) bool(v bool) { e.uint(boolToUint(v)) }
func (e *encoder) strings(v []string) {
	e.uint(uint64(len(v)))
	for _, s := range v {
		e.str(s)
	}
}

// sizer accumulates the encoded size of fields.
type sizer int

func (s *sizer) str(v string) { *s += sizer(ord.String.Size(v)) }
func (s *sizer) uint(v uint64) { *s += sizer(varint.Uint64.Size(v)) }
func (s *sizer) int(v int64) { *s += sizer(varint.Int64.Size(v)) }
func (s *sizer) float(v float64) { s.uint(math.Float64bits(v)) }
func (s *sizer) time(v time.Time) { s.int(timeToMicros(v)) }
func (s *sizer) bool(v bool) { s.uint(boolToUint(v)) }
func (s *sizer) strings(v []string) {
	s.uint(uint64(len(v)))
	for _, str := range v {
		s.str(str)
	}
}

// decoder reads mus-encoded fields, keeping the first error.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) str() (v string) {
	if d.err != nil {
		return
	}
	var n int
	v, n, d.err = ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	return
}

func (d *decoder) uint() (v uint64) {
	if d.err != nil {
		return
	}
	var n int
	v, n, d.err = varint.Uint64.Unmarshal(d.bs[d.n:])
	d.n += n
	return
}

func (d *decoder) int() (v int64) {
	if d.err != nil {
		return
	}
	var n int
	v, n, d.err = varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	return
}

func (d *decoder) float() float64 { return math.Float64frombits(d.uint()) }
func (d *decoder) time() time.Time { return microsToTime(d.int()) }
func (d *decoder) bool() bool { return d.uint() != 0 }
func (d *decoder) strings() []string {
	l := d.uint()
	if d.err != nil || l == 0 {
		return nil
	}
	if l > uint64(len(d.bs)-d.n) {
		d.err = errCorruptValue
		return nil
	}
	out := make([]string, 0, l)
	for range l {
		out = append(out, d.str())
	}
	return out
}

func timeToMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func microsToTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// entitySer is the mus serializer for core.Entity.
type entitySer struct{}

var entityMUS mus.Serializer[core.Entity] = entitySer{}

func (entitySer) Marshal(e core.Entity, bs []byte) int {
	enc := encoder{bs: bs}
	enc.str(e.Name)
	enc.str(string(e.Type))
	enc.str(e.Text)
	enc.float(e.Confidence)
	enc.str(e.Description)
	enc.strings(e.Aliases)
	enc.str(e.MitreID)
	enc.str(e.MitreName)
	enc.strings(e.ExternalReferences)
	enc.str(e.RunID)
	enc.time(e.UpdatedAt)
	return enc.n
}

func (entitySer) Unmarshal(bs []byte) (e core.Entity, n int, err error) {
	dec := decoder{bs: bs}
	e.Name = dec.str()
	e.Type = core.EntityType(dec.str())
	e.Text = dec.str()
	e.Confidence = dec.float()
	e.Description = dec.str()
	e.Aliases = dec.strings()
	e.MitreID = dec.str()
	e.MitreName = dec.str()
	e.ExternalReferences = dec.strings()
	e.RunID = dec.str()
	e.UpdatedAt = dec.time()
	return e, dec.n, dec.err
}

func (entitySer) Size(e core.Entity) int {
	var s sizer
	s.str(e.Name)
	s.str(string(e.Type))
	s.str(e.Text)
	s.float(e.Confidence)
	s.str(e.Description)
	s.strings(e.Aliases)
	s.str(e.MitreID)
	s.str(e.MitreName)
	s.strings(e.ExternalReferences)
	s.str(e.RunID)
	s.time(e.UpdatedAt)
	return int(s)
}

func (ser entitySer) Skip(bs []byte) (int, error) {
	_, n, err := ser.Unmarshal(bs)
	return n, err
}

// relationshipSer is the mus serializer for core.Relationship.
type relationshipSer struct{}

var relationshipMUS mus.Serializer[core.Relationship] = relationshipSer{}

func (relationshipSer) Marshal(r core.Relationship, bs []byte) int {
	enc := encoder{bs: bs}
	enc.str(r.SourceName)
	enc.str(string(r.SourceType))
	enc.str(r.TargetName)
	enc.str(string(r.TargetType))
	enc.str(string(r.Type))
	enc.str(r.Description)
	enc.float(r.Confidence)
	enc.str(r.RunID)
	enc.time(r.UpdatedAt)
	return enc.n
}

func (relationshipSer) Unmarshal(bs []byte) (r core.Relationship, n int, err error) {
	dec := decoder{bs: bs}
	r.SourceName = dec.str()
	r.SourceType = core.EntityType(dec.str())
	r.TargetName = dec.str()
	r.TargetType = core.EntityType(dec.str())
	r.Type = core.RelationshipType(dec.str())
	r.Description = dec.str()
	r.Confidence = dec.float()
	r.RunID = dec.str()
	r.UpdatedAt = dec.time()
	return r, dec.n, dec.err
}

func (relationshipSer) Size(r core.Relationship) int {
	var s sizer
	s.str(r.SourceName)
	s.str(string(r.SourceType))
	s.str(r.TargetName)
	s.str(string(r.TargetType))
	s.str(string(r.Type))
	s.str(r.Description)
	s.float(r.Confidence)
	s.str(r.RunID)
	s.time(r.UpdatedAt)
	return int(s)
}

func (ser relationshipSer) Skip(bs []byte) (int, error) {
	_, n, err := ser.Unmarshal(bs)
	return n, err
}

// runSer is the mus serializer for core.RunRecord.
type runSer struct{}

var runMUS mus.Serializer[core.RunRecord] = runSer{}

func (runSer) Marshal(r core.RunRecord, bs []byte) int {
	enc := encoder{bs: bs}
	enc.str(r.ID)
	enc.time(r.StartedAt)
	enc.time(r.FinishedAt)
	for _, v := range runCounters(&r) {
		enc.int(int64(*v))
	}
	enc.bool(r.DryRun)
	enc.bool(r.Stopped)
	return enc.n
}

func (runSer) Unmarshal(bs []byte) (r core.RunRecord, n int, err error) {
	dec := decoder{bs: bs}
	r.ID = dec.str()
	r.StartedAt = dec.time()
	r.FinishedAt = dec.time()
	for _, v := range runCounters(&r) {
		*v = int(dec.int())
	}
	r.DryRun = dec.bool()
	r.Stopped = dec.bool()
	return r, dec.n, dec.err
}

func (runSer) Size(r core.RunRecord) int {
	var s sizer
	s.str(r.ID)
	s.time(r.StartedAt)
	s.time(r.FinishedAt)
	for _, v := range runCounters(&r) {
		s.int(int64(*v))
	}
	s.bool(r.DryRun)
	s.bool(r.Stopped)
	return int(s)
}

func (ser runSer) Skip(bs []byte) (int, error) {
	_, n, err := ser.Unmarshal(bs)
	return n, err
}

// runCounters lists the counter fields in wire order.
func runCounters(r *core.RunRecord) []*int {
	return []*int{
		&r.Documents, &r.Committed, &r.Failed, &r.Skipped,
		&r.EmptyText, &r.Entities, &r.Relationships, &r.PersistenceErrors,
		&r.EntitiesWritten, &r.RelationshipsWritten,
	}
}

// idSetSer is the mus serializer for a checkpoint's committed ids.
type idSetSer struct{}

var idSetMUS mus.Serializer[[]int64] = idSetSer{}

func (idSetSer) Marshal(ids []int64, bs []byte) int {
	e := encoder{bs: bs}
	e.uint(uint64(len(ids)))
	for _, id := range ids {
		e.int(id)
	}
	return e.n
}

func (idSetSer) Unmarshal(bs []byte) (ids []int64, n int, err error) {
	d := decoder{bs: bs}
	l := d.uint()
	if d.err == nil && l > uint64(len(bs)-d.n) {
		d.err = errCorruptValue
	}
	if d.err != nil {
		return nil, d.n, d.err
	}
	ids = make([]int64, 0, l)
	for range l {
		ids = append(ids, d.int())
	}
	return ids, d.n, d.err
}

func (idSetSer) Size(ids []int64) int {
	var s sizer
	s.uint(uint64(len(ids)))
	for _, id := range ids {
		s.int(id)
	}
	return int(s)
}

func (ser idSetSer) Skip(bs []byte) (int, error) {
	_, n, err := ser.Unmarshal(bs)
	return n, err
}

func marshal[T any](ser mus.Serializer[T], v T) []byte {
	buf := make([]byte, ser.Size(v))
	ser.Marshal(v, buf)
	return buf
}

func unmarshal[T any](ser mus.Serializer[T], data []byte) (T, error) {
	v, _, err := ser.Unmarshal(data)
	return v, err
}
