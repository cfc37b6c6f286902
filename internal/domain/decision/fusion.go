package decision

// Fuse combines the three analyzer actions into the final decision.
//
// A dose reject is dispositive: the dose controller is the only analyzer
// grounded in a quantitative contract, so nothing can outvote its violation.
// Otherwise the most conservative action wins by rank, with errors fused as
// holds. At equal rank the dose, sut, ai order breaks the tie, which keeps
// the result deterministic.
func Fuse(dose, sut, ai Action) Action {
	if dose == Reject {
		return Reject
	}
	actions := [3]Action{dose, sut, ai}
	best := normalize(dose)
	for _, a := range actions[1:] {
		if Rank(a) > Rank(best) {
			best = normalize(a)
		}
	}
	return best
}

// normalize maps an error action to hold for fusion purposes.
func normalize(a Action) Action {
	if a == Error {
		return Hold
	}
	return a
}
