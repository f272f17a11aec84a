package drift

import "time"

// Record is implemented by every entity family the file store can hold.
// The type parameter is the implementing type itself, so Clone can return
// a fully typed deep copy.
type Record[T any] interface {
	Key() string
	Partition() (Status, Category)
	SetStatus(s Status, now time.Time)
	Meta() *Metadata
	Clone() T
}

func (p *Pattern) Key() string                   { return p.ID }
func (p *Pattern) Partition() (Status, Category) { return p.Status, p.Category }
func (p *Pattern) Meta() *Metadata               { return &p.Metadata }

// SetStatus replaces the status and refreshes lastSeen.
func (p *Pattern) SetStatus(s Status, now time.Time) {
	p.Status = s
	p.Metadata.touch(now)
}

// Clone returns a deep copy of the pattern.
func (p *Pattern) Clone() *Pattern {
	cp := *p
	cp.Locations = append([]Location(nil), p.Locations...)
	cp.Outliers = append([]Outlier(nil), p.Outliers...)
	cp.Metadata.Tags = append([]string(nil), p.Metadata.Tags...)
	return &cp
}

func (c *Contract) Key() string                   { return c.ID }
func (c *Contract) Partition() (Status, Category) { return c.Status, c.Category }
func (c *Contract) Meta() *Metadata               { return &c.Metadata }

// SetStatus replaces the status and refreshes lastSeen. Moving into
// verified stamps VerifiedAt; the caller sets VerifiedBy.
func (c *Contract) SetStatus(s Status, now time.Time) {
	if s == StatusVerified && c.Status != StatusVerified {
		c.VerifiedAt = now
	}
	c.Status = s
	c.Metadata.touch(now)
}

// Clone returns a deep copy of the contract.
func (c *Contract) Clone() *Contract {
	cp := *c
	cp.Locations = append([]Location(nil), c.Locations...)
	cp.Outliers = append([]Outlier(nil), c.Outliers...)
	cp.Mismatches = append([]Mismatch(nil), c.Mismatches...)
	cp.Metadata.Tags = append([]string(nil), c.Metadata.Tags...)
	return &cp
}

func (c *Constraint) Key() string                   { return c.ID }
func (c *Constraint) Partition() (Status, Category) { return c.Status, c.Category }
func (c *Constraint) Meta() *Metadata               { return &c.Metadata }

// SetStatus replaces the status and refreshes lastSeen.
func (c *Constraint) SetStatus(s Status, now time.Time) {
	c.Status = s
	c.Metadata.touch(now)
}

// Clone returns a deep copy of the constraint.
func (c *Constraint) Clone() *Constraint {
	cp := *c
	cp.AppliesTo = append([]string(nil), c.AppliesTo...)
	cp.Locations = append([]Location(nil), c.Locations...)
	cp.Outliers = append([]Outlier(nil), c.Outliers...)
	cp.Metadata.Tags = append([]string(nil), c.Metadata.Tags...)
	return &cp
}
