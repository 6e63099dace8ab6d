package selector

import (
	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
	"github.com/couchcryptid/weather-correlation-sync/internal/observability"
)

// Inputs are the upstream values of one evaluation. Datasets are compared by
// pointer, so a refetch always counts as a change.
type Inputs struct {
	Cities *domain.CityList
	Live   *domain.LiveData
	Daily  *domain.DailySnapshot
	Yearly *domain.YearlyMeans
	Hourly *domain.HourlyReference
	Date   string
	Today  bool
	Target int
}

type bindKey struct {
	cities *domain.CityList
	live   *domain.LiveData
}

type pointsKey struct {
	bound *BoundCities
	live  *domain.LiveData
	daily *domain.DailySnapshot
	date  string
	today bool
}

type todayKey struct {
	base   *DatumSet
	hourly *domain.HourlyReference
	today  bool
}

type historicalKey struct {
	base   *DatumSet
	yearly *domain.YearlyMeans
	today  bool
}

type mergeKey struct {
	base       *DatumSet
	today      *Anomalies
	historical *Anomalies
}

type sampleKey struct {
	merged *DatumSet
	target int
}

// Pipeline is the chain of memoized stages producing the render-ready set.
// Every stage keeps its own last input and output.
type Pipeline struct {
	bind       *Memo[bindKey, *BoundCities]
	points     *Memo[pointsKey, *PointSet]
	base       *Memo[*PointSet, *DatumSet]
	today      *Memo[todayKey, *Anomalies]
	historical *Memo[historicalKey, *Anomalies]
	merged     *Memo[mergeKey, *DatumSet]
	sampled    *Memo[sampleKey, *DatumSet]
}

// New builds a pipeline. metrics may be nil.
func New(metrics *observability.Metrics) *Pipeline {
	var onCompute func(string)
	if metrics != nil {
		onCompute = func(stage string) {
			metrics.SelectorRecomputes.WithLabelValues(stage).Inc()
		}
	}

	return &Pipeline{
		bind: NewMemo("bind", func(k bindKey) *BoundCities {
			return bindCities(k.cities, k.live)
		}, onCompute),
		points: NewMemo("points", func(k pointsKey) *PointSet {
			if k.bound == nil {
				return nil
			}
			if k.today {
				if k.live == nil {
					return nil
				}
				return correlatePoints(k.bound, k.live.Measurements, k.date, true)
			}
			if k.daily == nil || k.daily.Date != k.date {
				return nil
			}
			return correlatePoints(k.bound, k.daily.Measurements, k.date, false)
		}, onCompute),
		base: NewMemo("base", func(p *PointSet) *DatumSet {
			if p == nil {
				return nil
			}
			return baseData(p)
		}, onCompute),
		today: NewMemo("today_anomaly", func(k todayKey) *Anomalies {
			return todayAnomalies(k.base, k.hourly, k.today)
		}, onCompute),
		historical: NewMemo("historical_anomaly", func(k historicalKey) *Anomalies {
			return historicalAnomalies(k.base, k.yearly, k.today)
		}, onCompute),
		merged: NewMemo("merge", func(k mergeKey) *DatumSet {
			if k.base == nil {
				return nil
			}
			return merge(k.base, k.today, k.historical)
		}, onCompute),
		sampled: NewMemo("sample", func(k sampleKey) *DatumSet {
			if k.merged == nil {
				return nil
			}
			return sample(k.merged, k.target)
		}, onCompute),
	}
}

// Bound returns the correlated city list, or nil until cities and stations
// are both loaded.
func (p *Pipeline) Bound(cities *domain.CityList, live *domain.LiveData) *BoundCities {
	return p.bind.Get(bindKey{cities: cities, live: live})
}

// Evaluate runs every stage. It returns nil when the city list, the station
// set or the measurement set of the active mode is missing. Identical inputs
// return the identical *DatumSet.
func (p *Pipeline) Evaluate(in Inputs) *DatumSet {
	base := p.baseOf(in)
	today, historical := p.anomaliesOf(base, in)
	merged := p.merged.Get(mergeKey{base: base, today: today, historical: historical})

	target := in.Target
	if target == 0 {
		target = DefaultSampleTarget
	}
	return p.sampled.Get(sampleKey{merged: merged, target: target})
}

// Anomalies returns both anomaly variants for in. The variant that does not
// match the selected mode is AnomalyNotApplicable.
func (p *Pipeline) Anomalies(in Inputs) (today, historical *Anomalies) {
	return p.anomaliesOf(p.baseOf(in), in)
}

func (p *Pipeline) baseOf(in Inputs) *DatumSet {
	pk := pointsKey{bound: p.Bound(in.Cities, in.Live), date: in.Date, today: in.Today}
	if in.Today {
		pk.live = in.Live
	} else {
		pk.daily = in.Daily
	}
	return p.base.Get(p.points.Get(pk))
}

func (p *Pipeline) anomaliesOf(base *DatumSet, in Inputs) (today, historical *Anomalies) {
	today = p.today.Get(todayKey{base: base, hourly: in.Hourly, today: in.Today})
	historical = p.historical.Get(historicalKey{base: base, yearly: in.Yearly, today: in.Today})
	return today, historical
}

// Invalidate drops every stage's cache so the next evaluation recomputes.
func (p *Pipeline) Invalidate() {
	p.bind.Invalidate()
	p.points.Invalidate()
	p.base.Invalidate()
	p.today.Invalidate()
	p.historical.Invalidate()
	p.merged.Invalidate()
	p.sampled.Invalidate()
}
