// Package rank maps point totals to the twenty respect tiers shared by
// accounts and guilds.
package rank

// Width is the number of points covered by one tier.
const Width = 10

// Labels are the tier names from lowest to highest.
var Labels = [...]string{
	"Tier I", "Tier II", "Tier III", "Tier IV", "Tier V",
	"Tier VI", "Tier VII", "Tier VIII", "Tier IX", "Tier X",
	"Tier XI", "Tier XII", "Tier XIII", "Tier XIV", "Tier XV",
	"Tier XVI", "Tier XVII", "Tier XVIII", "Tier XIX", "Tier XX",
}

// Index returns the zero-based tier for points. Anything at or above
// 190 is the top tier; negative totals stay in the first.
func Index(points int) int {
	if points < 0 {
		return 0
	}
	return min(points/Width, len(Labels)-1)
}

// Of returns the tier label for points.
func Of(points int) string {
	return Labels[Index(points)]
}

// First is the label every new account and guild starts with.
func First() string { return Labels[0] }
