package session

// StubRecommendation is the fixed output of AnalyzeStub.
const StubRecommendation = "EQ rec: Boost 100Hz +3dB"

// AnalyzeStub is a placeholder for recording analysis. It ignores recording
// and always returns StubRecommendation.
func AnalyzeStub(recording []byte) string {
	_ = recording
	return StubRecommendation
}
