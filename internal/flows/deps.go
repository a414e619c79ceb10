package flows

// Deps groups flow dependency sets. The root engine builds this once and
// delegates each resolution to the matching flow function.
type Deps struct {
	Resolve ResolveDeps
	Hydrate HydrateDeps
}
