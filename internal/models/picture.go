package models

// Picture is the state of one widget instance.
type Picture struct {
	ID       string   `json:"id" msgpack:"id"`
	Complete bool     `json:"complete" msgpack:"complete"` // load sequence has ended, success or failure
	Sources  []Source `json:"sources" msgpack:"sources"`   // large to small, fallback last
	Img      Img      `json:"img" msgpack:"img"`
}

// Source is one responsive candidate of a picture element.
type Source struct {
	Srcset string `json:"srcset" msgpack:"srcset"`
	Media  string `json:"media,omitempty" msgpack:"media,omitempty"`
}

// Img holds the attributes of the base image element.
type Img struct {
	Srcset string `json:"srcset" msgpack:"srcset"`
	Alt    string `json:"alt" msgpack:"alt"`
	Usemap string `json:"usemap,omitempty" msgpack:"usemap,omitempty"`
}

// Clone returns a copy of the picture that shares no slices with p.
func (p Picture) Clone() Picture {
	c := p
	if p.Sources != nil {
		c.Sources = append([]Source(nil), p.Sources...)
	}
	return c
}

// Fallback returns the source without a media query, which is always last.
func (p Picture) Fallback() (Source, bool) {
	if len(p.Sources) == 0 {
		return Source{}, false
	}
	return p.Sources[len(p.Sources)-1], true
}

// SourceSpec is one declared source: a srcset and an optional breakpoint
// name resolved against the configured media queries.
type SourceSpec struct {
	Srcset     string `json:"srcset" yaml:"srcset" mapstructure:"srcset"`
	Breakpoint string `json:"breakpoint,omitempty" yaml:"breakpoint,omitempty" mapstructure:"breakpoint"`
}
