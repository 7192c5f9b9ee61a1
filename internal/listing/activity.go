package listing

// MaxActiveMembers caps the displayed estimate.
const MaxActiveMembers = 1000

// ActiveMembers estimates how many members are online right now, for display
// only: 10% of the member count, rounded down, capped at MaxActiveMembers.
func ActiveMembers(memberCount int) int {
	if memberCount <= 0 {
		return 0
	}
	return min(memberCount/10, MaxActiveMembers)
}
