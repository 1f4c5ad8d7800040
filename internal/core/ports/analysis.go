package ports

// AnalysisQueue accepts tracks whose synthetic features should be refined
// from their preview clip. Enqueue never blocks; it reports false when the
// job was dropped.
type AnalysisQueue interface {
	Enqueue(trackID, previewURL string) bool
}
