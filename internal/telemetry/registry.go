package telemetry

// InferenceService is the AI/inference service; its events carry token counts.
const InferenceService = "ai-brain"

// Service is one entry of the fixed service registry.
type Service struct {
	ID       string
	Position Position
}

// Registry is the ordered, fixed set of monitored services.
type Registry []Service

// DefaultRegistry returns the five services laid out on a circle of radius 5.
func DefaultRegistry() Registry {
	return Registry{
		{ID: "gateway", Position: Position{X: 0, Y: 0, Z: 5}},
		{ID: "auth", Position: Position{X: 4.76, Y: 0, Z: 1.55}},
		{ID: "payment", Position: Position{X: 2.94, Y: 0, Z: -4.05}},
		{ID: InferenceService, Position: Position{X: -2.94, Y: 0, Z: -4.05}},
		{ID: "database", Position: Position{X: -4.76, Y: 0, Z: 1.55}},
	}
}

// IDs returns the service identifiers in registry order.
func (r Registry) IDs() []string {
	ids := make([]string, len(r))
	for i, s := range r {
		ids[i] = s.ID
	}
	return ids
}

// Lookup finds a service by id.
func (r Registry) Lookup(id string) (Service, bool) {
	for _, s := range r {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

// Has reports whether id is a registered service.
func (r Registry) Has(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}
