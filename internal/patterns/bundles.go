package patterns

// BundlePartner is an instruction known to co-occur with the bundle key.
// Boost is added to the partner when both are retained for a request.
type BundlePartner struct {
	ID     string
	Boost  int
	CoRate float64
}

// instructionBundles maps normalized instruction ids to their co-routing
// partners. Rates come from observed co-occurrence in routing events.
var instructionBundles = map[string][]BundlePartner{
	"trust_execution/development_workflow_essentials": {
		{ID: "trust_execution/trust_based_task_execution", Boost: 12, CoRate: 0.83},
	},
	"trust_execution/trust_based_task_execution": {
		{ID: "trust_execution/development_workflow_essentials", Boost: 12, CoRate: 0.83},
	},
	"safety_prevention/destructive_operation_gates": {
		{ID: "trust_execution/trust_based_task_execution", Boost: 8, CoRate: 0.61},
	},
}

// BundlePartners returns the partners for a normalized instruction id.
func BundlePartners(id string) []BundlePartner {
	return instructionBundles[id]
}
