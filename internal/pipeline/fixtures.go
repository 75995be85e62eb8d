package pipeline

import (
	"math"
	"time"

	"btc-signal-lab/internal/domain"
)

// SyntheticInput builds a deterministic demo data set of days bars starting
// at start: a slow uptrend with a mid-series correction, rising volume and
// feature values that pass the default gate on most days.
func SyntheticInput(start time.Time, days int) Input {
	start = domain.Day(start)
	in := Input{
		Bars:     make([]*domain.DailyBar, 0, days),
		Features: make([]*domain.FeatureRecord, 0, days),
	}

	prev := 0.0
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)

		price := 20000 + 150*float64(i) + 1200*math.Sin(float64(i)/9)
		if i >= days/2 && i < days/2+10 {
			price *= 0.82
		}
		change := 0.0
		if prev > 0 {
			change = (price - prev) / prev * 100
		}
		prev = price

		in.Bars = append(in.Bars, &domain.DailyBar{
			Date:      date,
			Open:      price * 0.995,
			High:      price * 1.01,
			Low:       price * 0.985,
			Close:     price,
			Volume:    1e9 + 2e7*float64(i) + 3e8*math.Abs(math.Sin(float64(i)/4)),
			ChangePct: change,
		})

		sentiment := 25 + 10*math.Sin(float64(i)/5)
		whale := 300 + 80*math.Cos(float64(i)/7)
		whale1m := whale / 10
		social := 5000 + 40*float64(i)
		flow := 100 * math.Sin(float64(i)/3)
		in.Features = append(in.Features, &domain.FeatureRecord{
			Date:                  date,
			SentimentBalance:      &sentiment,
			UniqueSocialVolume1h:  &social,
			MinersToExchangesFlow: &flow,
			WhaleCount100k:        &whale,
			WhaleCount1m:          &whale1m,
		})
	}
	return in
}
