package geo

// Sample down-samples feats to at most limit features, taken at a fixed
// stride through the ordered list. Repeated calls with the same input
// and limit return the same features; the bias toward evenly spaced
// records over a uniform random sample is intentional.
func Sample(feats []Feature, limit int) []Feature {
	if limit <= 0 || len(feats) <= limit {
		return feats
	}
	out := make([]Feature, 0, limit)
	step := float64(len(feats)) / float64(limit)
	for i := 0; i < limit; i++ {
		out = append(out, feats[int(float64(i)*step)])
	}
	return out
}
