// Package detect assigns semantic roles (date, description, amount,
// debit/credit, balance) to the raw columns of a parsed file, with a
// confidence score per role and an overall detection confidence.
package detect

// Role is a semantic column role.
type Role string

const (
	RoleDate        Role = "date"
	RoleDescription Role = "description"
	RoleAmount      Role = "amount"
	RoleDebit       Role = "debit"
	RoleCredit      Role = "credit"
	RoleBalance     Role = "balance"
)

// Assignment binds a role to a source column.
type Assignment struct {
	Column     int     `json:"column"`     // zero-based source column index
	Name       string  `json:"name"`       // column identifier (header or positional)
	Confidence float64 `json:"confidence"` // in [0,1]
	Overridden bool    `json:"overridden,omitempty"`
}

// Mapping is the classifier's proposal for one file. One mapping belongs to
// exactly one import session; it is mutable only through Apply before
// normalization runs.
type Mapping struct {
	Roles               map[Role]Assignment `json:"roles"`
	DateLayout          string              `json:"date_layout,omitempty"` // Go time layout
	DetectionConfidence float64             `json:"detection_confidence"`
	RequiresManualInput bool                `json:"requires_manual_input"`
	UnmappedColumns     []string            `json:"unmapped_columns"`

	columnNames []string
}

// Column returns the source column index for a role.
func (m *Mapping) Column(role Role) (int, bool) {
	a, ok := m.Roles[role]
	if !ok {
		return 0, false
	}
	return a.Column, true
}

// HasSplitAmount reports whether the amount is expressed as separate
// debit/credit columns rather than one signed column.
func (m *Mapping) HasSplitAmount() bool {
	_, d := m.Roles[RoleDebit]
	_, c := m.Roles[RoleCredit]
	return d && c
}

// Complete reports whether all mandatory roles (date, description, and
// either a single amount or a debit/credit pair) are assigned.
func (m *Mapping) Complete() bool {
	if _, ok := m.Roles[RoleDate]; !ok {
		return false
	}
	if _, ok := m.Roles[RoleDescription]; !ok {
		return false
	}
	if _, ok := m.Roles[RoleAmount]; ok {
		return true
	}
	return m.HasSplitAmount()
}

// Apply replaces role assignments verbatim with user-chosen columns.
// Overridden roles get confidence 1.0 and are never re-detected. Passing a
// negative column clears the role.
func (m *Mapping) Apply(overrides map[Role]int, acceptThreshold float64) {
	for role, col := range overrides {
		if col < 0 {
			delete(m.Roles, role)
			continue
		}
		m.Roles[role] = Assignment{
			Column:     col,
			Name:       m.columnName(col),
			Confidence: 1.0,
			Overridden: true,
		}
	}
	m.recalculate(acceptThreshold)
}

func (m *Mapping) columnName(col int) string {
	if col >= 0 && col < len(m.columnNames) {
		return m.columnNames[col]
	}
	return ""
}

// recalculate rederives the overall confidence, the manual-input flag, and
// the unmapped column list from the current role assignments.
func (m *Mapping) recalculate(acceptThreshold float64) {
	m.DetectionConfidence = m.overallConfidence()
	m.RequiresManualInput = m.DetectionConfidence < acceptThreshold || !m.Complete()

	assigned := make(map[int]bool, len(m.Roles))
	for _, a := range m.Roles {
		assigned[a.Column] = true
	}
	m.UnmappedColumns = m.UnmappedColumns[:0]
	for i, name := range m.columnNames {
		if !assigned[i] {
			m.UnmappedColumns = append(m.UnmappedColumns, name)
		}
	}
}

// overallConfidence is the minimum of the confidences of the three
// mandatory roles. A missing mandatory role scores zero.
func (m *Mapping) overallConfidence() float64 {
	amount := 0.0
	if a, ok := m.Roles[RoleAmount]; ok {
		amount = a.Confidence
	} else if m.HasSplitAmount() {
		amount = min(m.Roles[RoleDebit].Confidence, m.Roles[RoleCredit].Confidence)
	}

	overall := amount
	for _, role := range []Role{RoleDate, RoleDescription} {
		c := 0.0
		if a, ok := m.Roles[role]; ok {
			c = a.Confidence
		}
		overall = min(overall, c)
	}
	return overall
}
