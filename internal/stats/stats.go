// Package stats computes the dashboard rollups. Every function is pure:
// it takes a filtered snapshot of records and returns plain structs, so
// calls are reentrant and never share state. Ties on a primary sort key
// keep discovery order (stable sort); callers must not rely on a secondary
// order beyond that.
package stats

import (
	"math"
	"sort"
	"strings"
	"time"

	"mesdash/internal/models"
)

// DefaultReferencePassRate is the trend baseline when no configured rate
// is supplied.
const DefaultReferencePassRate = 95.0

// trendBand is the dead zone around the reference rate inside which the
// trend reads "flat".
const trendBand = 0.5

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func rate(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round1(float64(part) / float64(whole) * 100)
}

// ComputeKPI builds the summary block. retest_count counts every record
// beyond the first per serial, regardless of result.
func ComputeKPI(records []models.TestRecord, referenceRate float64) models.KPI {
	kpi := models.KPI{Total: len(records)}

	bySerial := map[string][]models.TestRecord{}
	passedSerials := map[string]bool{}
	for _, r := range records {
		if r.Result == models.ResultPass {
			kpi.Passed++
			passedSerials[r.SerialNumber] = true
		} else {
			kpi.Failed++
		}
		bySerial[r.SerialNumber] = append(bySerial[r.SerialNumber], r)
	}
	kpi.PassRate = rate(kpi.Passed, kpi.Total)
	kpi.DeviceCount = len(bySerial)
	kpi.PassedDeviceCount = len(passedSerials)
	kpi.ProductionYieldRate = rate(kpi.PassedDeviceCount, kpi.DeviceCount)
	kpi.RetestCount = kpi.Total - kpi.DeviceCount

	switch {
	case kpi.PassRate > referenceRate+trendBand:
		kpi.Trend = "up"
	case kpi.PassRate < referenceRate-trendBand:
		kpi.Trend = "down"
	default:
		kpi.Trend = "flat"
	}
	return kpi
}

// ComputeStationStats groups by station. Every configured station appears
// even with zero records; stations present only in the data follow in
// discovery order.
func ComputeStationStats(records []models.TestRecord, configuredStations []string) []models.GroupStat {
	return groupStats(records, configuredStations, func(r models.TestRecord) string { return r.Station })
}

// ComputeModelStats is the per-model twin of ComputeStationStats.
func ComputeModelStats(records []models.TestRecord, configuredModels []string) []models.GroupStat {
	return groupStats(records, configuredModels, func(r models.TestRecord) string { return r.Model })
}

func groupStats(records []models.TestRecord, configured []string, key func(models.TestRecord) string) []models.GroupStat {
	order := make([]string, 0, len(configured))
	index := map[string]int{}
	add := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		index[name] = len(order)
		order = append(order, name)
		return len(order) - 1
	}
	for _, name := range configured {
		add(name)
	}

	totals := make([]models.GroupStat, len(order), len(order)+8)
	for _, r := range records {
		i := add(key(r))
		for len(totals) <= i {
			totals = append(totals, models.GroupStat{})
		}
		totals[i].Total++
		if r.Result == models.ResultPass {
			totals[i].Passed++
		} else {
			totals[i].Failed++
		}
	}
	for i := range totals {
		totals[i].Name = order[i]
		totals[i].PassRate = rate(totals[i].Passed, totals[i].Total)
	}
	return totals
}

const dayLayout = "2006-01-02"

// ComputeDailySeries builds one bucket per calendar day from startDate to
// endDate, both inclusive. Records land in the bucket whose ISO date their
// normalized test date equals. The per-day retest count is approximated as
// 30% of that day's failures.
func ComputeDailySeries(records []models.TestRecord, startDate, endDate string) []models.DailyPoint {
	start, err1 := time.ParseInLocation(dayLayout, startDate, time.Local)
	end, err2 := time.ParseInLocation(dayLayout, endDate, time.Local)
	if err1 != nil || err2 != nil || end.Before(start) {
		return []models.DailyPoint{}
	}
	// +1 keeps the end day in range; a plain millisecond diff would drop
	// it. Rounding absorbs DST-shortened or -lengthened days.
	days := int(math.Round(end.Sub(start).Hours()/24)) + 1

	byDate := map[string][]models.TestRecord{}
	for _, r := range records {
		if r.Date != "" {
			byDate[r.Date] = append(byDate[r.Date], r)
		}
	}

	series := make([]models.DailyPoint, 0, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(dayLayout)
		bucket := byDate[date]
		point := models.DailyPoint{Date: date, Total: len(bucket)}
		passed, failed := 0, 0
		devices := map[string]bool{}
		for _, r := range bucket {
			if r.Result == models.ResultPass {
				passed++
			} else {
				failed++
			}
			devices[r.SerialNumber] = true
		}
		point.PassRate = rate(passed, point.Total)
		point.DeviceCount = len(devices)
		point.RetestCount = int(math.Round(float64(failed) * 0.3))
		series = append(series, point)
	}
	return series
}

// ComputeFailureReasons ranks test items by failure rate across the whole
// snapshot (not scoped per station or model). Items that never failed are
// dropped; ties keep discovery order.
func ComputeFailureReasons(records []models.TestRecord) []models.FailureReason {
	order := []string{}
	tally := map[string]*models.FailureReason{}
	for _, r := range records {
		for _, it := range r.Items {
			if it.Name == "" {
				continue
			}
			fr, ok := tally[it.Name]
			if !ok {
				fr = &models.FailureReason{Reason: it.Name}
				tally[it.Name] = fr
				order = append(order, it.Name)
			}
			fr.Total++
			if strings.EqualFold(it.Result, models.ResultFail) {
				fr.Count++
			}
		}
	}
	reasons := make([]models.FailureReason, 0, len(order))
	for _, name := range order {
		fr := tally[name]
		if fr.Count == 0 {
			continue
		}
		fr.FailureRate = rate(fr.Count, fr.Total)
		reasons = append(reasons, *fr)
	}
	sort.SliceStable(reasons, func(i, j int) bool {
		return reasons[i].FailureRate > reasons[j].FailureRate
	})
	return reasons
}

// ComputeRetestStats reports per-station retest activity. A serial counts
// as retested at a station when it has two or more records there,
// regardless of result — the broader of the two retest definitions (the
// narrower, FAIL-only one lives in ComputeRetestGroups; they are kept
// separate deliberately). Stations with no retested serials are omitted.
func ComputeRetestStats(records []models.TestRecord) []models.RetestStationStat {
	stationOrder := []string{}
	byStation := map[string][]models.TestRecord{}
	for _, r := range records {
		if _, ok := byStation[r.Station]; !ok {
			stationOrder = append(stationOrder, r.Station)
		}
		byStation[r.Station] = append(byStation[r.Station], r)
	}

	out := []models.RetestStationStat{}
	for _, station := range stationOrder {
		recs := byStation[station]
		bySerial := map[string][]models.TestRecord{}
		for _, r := range recs {
			bySerial[r.SerialNumber] = append(bySerial[r.SerialNumber], r)
		}
		retested, lastPassed := 0, 0
		for _, group := range bySerial {
			if len(group) < 2 {
				continue
			}
			retested++
			sortChronological(group)
			if group[len(group)-1].Result == models.ResultPass {
				lastPassed++
			}
		}
		if retested == 0 {
			continue
		}
		out = append(out, models.RetestStationStat{
			Station:        station,
			OriginalCount:  len(recs),
			RetestCount:    retested,
			RetestRate:     rate(retested, len(recs)),
			RetestPassRate: rate(lastPassed, retested),
		})
	}
	return out
}

// ComputeRetestGroups finds serials with repeated failures: FAIL records
// only, two or more per serial. The failed item names are unioned across
// every attempt in the group, not just the last one. Groups come back
// sorted by retest count, descending.
func ComputeRetestGroups(records []models.TestRecord) []models.RetestGroup {
	serialOrder := []string{}
	bySerial := map[string][]models.TestRecord{}
	for _, r := range records {
		if r.Result != models.ResultFail {
			continue
		}
		if _, ok := bySerial[r.SerialNumber]; !ok {
			serialOrder = append(serialOrder, r.SerialNumber)
		}
		bySerial[r.SerialNumber] = append(bySerial[r.SerialNumber], r)
	}

	groups := []models.RetestGroup{}
	for _, serial := range serialOrder {
		recs := bySerial[serial]
		if len(recs) < 2 {
			continue
		}
		sortChronological(recs)
		groups = append(groups, models.RetestGroup{
			SerialNumber: serial,
			RetestCount:  len(recs),
			First:        recs[0],
			Last:         recs[len(recs)-1],
			Records:      recs,
			FailedItems:  failedItemNames(recs),
		})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].RetestCount > groups[j].RetestCount
	})
	return groups
}

// sortChronological orders records by their normalized timestamp. The
// "YYYY-MM-DD HH:MM:SS" shape sorts lexicographically; records without a
// parseable date keep their insertion position among equals.
func sortChronological(records []models.TestRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return chronoKey(records[i]) < chronoKey(records[j])
	})
}

func chronoKey(r models.TestRecord) string {
	return r.Date + " " + r.Time
}

func failedItemNames(records []models.TestRecord) []string {
	seen := map[string]bool{}
	for _, r := range records {
		for _, it := range r.Items {
			if strings.EqualFold(it.Result, models.ResultFail) && it.Name != "" {
				seen[it.Name] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
