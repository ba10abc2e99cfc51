package model

// AgentClass distinguishes evacuee mobility profiles.
type AgentClass int

const (
	AgentNormal AgentClass = iota
	AgentMobilityImpaired
)

func (c AgentClass) String() string {
	switch c {
	case AgentNormal:
		return "normal"
	case AgentMobilityImpaired:
		return "mobility_impaired"
	default:
		return "unknown"
	}
}
