package segment

import (
	"fmt"
	"testing"
	"time"
)

// Benchmark the window scan on tracks of increasing size
func BenchmarkFindBestSizes(b *testing.B) {
	sizes := []int{1000, 10000, 100000}

	for _, size := range sizes {
		points := equatorialRoute(size, 3, time.Second)
		// sprinkle GPS jumps so the penalty bookkeeping is exercised
		for i := 50; i < size; i += 97 {
			points[i].Lat += 0.0005
		}

		b.Run(fmt.Sprintf("Points%d", size), func(b *testing.B) {
			params := DefaultParams()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				outcome := FindBest(points, 5000, params)
				if size*3 > 5000 && !outcome.Found {
					b.Fatal("expected a 5 km window")
				}
			}
		})
	}
}

// Benchmark all default distances on one marathon-sized track
func BenchmarkAllDistances(b *testing.B) {
	points := equatorialRoute(15000, 3, time.Second)
	distances := []float64{400, 800, 1000, 5000, 10000, 15000, 20000, 21097.5, 42195}
	params := DefaultParams()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, d := range distances {
			_ = FindBest(points, d, params)
		}
	}
}
