package domain

// ProtocolInputSpec declares one input (or output) role of a protocol action:
// which kind of artifact it takes, an optional type constraint, an optional
// named criteria predicate, and how many artifacts may fill it.
type ProtocolInputSpec struct {
	Role           string            `json:"role"`
	IsInput        bool              `json:"is_input"`
	Kind           ArtifactKind      `json:"kind"`
	TypeID         *string           `json:"type_id,omitempty"`
	CriteriaName   string            `json:"criteria_name,omitempty"`
	CriteriaConfig map[string]string `json:"criteria_config,omitempty"`
	MinOccurs      int               `json:"min_occurs"`
	MaxOccurs      *int              `json:"max_occurs,omitempty"`
}

// ValidateRange checks 0 <= MinOccurs <= MaxOccurs.
func (s ProtocolInputSpec) ValidateRange() error {
	if s.MinOccurs < 0 || (s.MaxOccurs != nil && *s.MaxOccurs < s.MinOccurs) {
		return &InvalidCardinalityError{Role: s.Role, MinOccurs: s.MinOccurs, MaxOccurs: s.MaxOccurs}
	}
	return nil
}

// Accepts reports whether count lies within [MinOccurs, MaxOccurs].
func (s ProtocolInputSpec) Accepts(count int) bool {
	if count < s.MinOccurs {
		return false
	}
	return s.MaxOccurs == nil || count <= *s.MaxOccurs
}

// AnyType reports whether the spec accepts every type of its kind.
func (s ProtocolInputSpec) AnyType() bool {
	return s.TypeID == nil || *s.TypeID == ""
}

// IsCompatible compares two specs when protocol definitions are merged: the
// kinds must agree, the cardinality ranges must overlap, and the type
// constraints must be equal (two "any type" constraints are equal).
func (s ProtocolInputSpec) IsCompatible(other ProtocolInputSpec) bool {
	if s.Kind != other.Kind {
		return false
	}
	if !rangesOverlap(s, other) {
		return false
	}
	if s.AnyType() || other.AnyType() {
		return s.AnyType() && other.AnyType()
	}
	return *s.TypeID == *other.TypeID
}

func rangesOverlap(a, b ProtocolInputSpec) bool {
	if a.MaxOccurs != nil && *a.MaxOccurs < b.MinOccurs {
		return false
	}
	if b.MaxOccurs != nil && *b.MaxOccurs < a.MinOccurs {
		return false
	}
	return true
}

func cloneSpec(s ProtocolInputSpec) ProtocolInputSpec {
	cp := s
	if s.TypeID != nil {
		cp.TypeID = strPtr(*s.TypeID)
	}
	if s.MaxOccurs != nil {
		cp.MaxOccurs = IntPtr(*s.MaxOccurs)
	}
	if s.CriteriaConfig != nil {
		cp.CriteriaConfig = make(map[string]string, len(s.CriteriaConfig))
		for k, v := range s.CriteriaConfig {
			cp.CriteriaConfig[k] = v
		}
	}
	return cp
}
