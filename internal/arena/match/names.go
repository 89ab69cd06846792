package match

import (
	"fmt"
	"math/rand"
)

var phoneticNames = [...]string{
	"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf", "Hotel",
	"India", "Juliet", "Kilo", "Lima", "Mike", "November", "Oscar", "Papa",
	"Quebec", "Romeo", "Sierra", "Tango", "Uniform", "Victor", "Whiskey",
	"Xray", "Yankee", "Zulu",
}

// nextPhoneticName returns the first free phonetic name, then Alpha_1,
// Bravo_1 and so on.
func nextPhoneticName(taken func(string) bool) string {
	for _, n := range phoneticNames {
		if !taken(n) {
			return n
		}
	}
	for counter := 1; ; counter++ {
		for _, base := range phoneticNames {
			if candidate := fmt.Sprintf("%s_%d", base, counter); !taken(candidate) {
				return candidate
			}
		}
	}
}

func randomColor(rng *rand.Rand) string {
	return fmt.Sprintf("#%06x", rng.Intn(0x1000000))
}
