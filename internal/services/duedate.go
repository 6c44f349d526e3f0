package services

import (
	"time"

	"github.com/6tail/lunar-go/HolidayUtil"
	"github.com/6tail/lunar-go/calendar"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/at"
	"github.com/rickar/cal/v2/au"
	"github.com/rickar/cal/v2/be"
	"github.com/rickar/cal/v2/br"
	"github.com/rickar/cal/v2/ca"
	"github.com/rickar/cal/v2/ch"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/dk"
	"github.com/rickar/cal/v2/es"
	"github.com/rickar/cal/v2/fi"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/ie"
	"github.com/rickar/cal/v2/it"
	"github.com/rickar/cal/v2/jp"
	"github.com/rickar/cal/v2/nl"
	"github.com/rickar/cal/v2/no"
	"github.com/rickar/cal/v2/nz"
	"github.com/rickar/cal/v2/pl"
	"github.com/rickar/cal/v2/pt"
	"github.com/rickar/cal/v2/se"
	"github.com/rickar/cal/v2/us"
)

// defaultDueDateBusinessDays is how long a market team gets to answer a
// questionnaire, counted in business days of its own market.
const defaultDueDateBusinessDays = 35

// marketHolidays maps market codes to their public holiday sets. Australia
// has no nationwide set, so NSW stands in.
var marketHolidays = map[string]struct {
	name string
	days []*cal.Holiday
}{
	"NL": {"Netherlands", nl.Holidays},
	"DE": {"Germany", de.Holidays},
	"ES": {"Spain", es.Holidays},
	"FR": {"France", fr.Holidays},
	"GB": {"United Kingdom", gb.Holidays},
	"IT": {"Italy", it.Holidays},
	"BE": {"Belgium", be.Holidays},
	"AT": {"Austria", at.Holidays},
	"CH": {"Switzerland", ch.Holidays},
	"SE": {"Sweden", se.Holidays},
	"NO": {"Norway", no.Holidays},
	"DK": {"Denmark", dk.Holidays},
	"FI": {"Finland", fi.Holidays},
	"PL": {"Poland", pl.Holidays},
	"PT": {"Portugal", pt.Holidays},
	"IE": {"Ireland", ie.Holidays},
	"US": {"United States", us.Holidays},
	"CA": {"Canada", ca.Holidays},
	"BR": {"Brazil", br.Holidays},
	"JP": {"Japan", jp.Holidays},
	"AU": {"Australia", au.HolidaysNSW},
	"NZ": {"New Zealand", nz.Holidays},
}

// DueDateService computes response deadlines on per-market business
// calendars. Unknown markets fall back to plain Monday-to-Friday.
type DueDateService struct {
	calendars    map[string]*cal.BusinessCalendar
	businessDays int
}

func NewDueDateService(businessDays int) *DueDateService {
	if businessDays <= 0 {
		businessDays = defaultDueDateBusinessDays
	}

	calendars := make(map[string]*cal.BusinessCalendar, len(marketHolidays))
	for code, market := range marketHolidays {
		c := cal.NewBusinessCalendar()
		c.Name = market.name
		c.AddHoliday(market.days...)
		calendars[code] = c
	}

	return &DueDateService{calendars: calendars, businessDays: businessDays}
}

// IsWorkday reports whether t is a business day in the given market. China
// follows the official workday schedule, including shifted working weekends.
func (s *DueDateService) IsWorkday(t time.Time, countryCode string) bool {
	if countryCode == "CN" {
		return s.isWorkdayChina(t)
	}

	c, ok := s.calendars[countryCode]
	if !ok {
		return !cal.IsWeekend(t)
	}
	return c.IsWorkday(t)
}

func (s *DueDateService) isWorkdayChina(t time.Time) bool {
	solar := calendar.NewSolarFromDate(t)
	holiday := HolidayUtil.GetHolidayByYmd(solar.GetYear(), solar.GetMonth(), solar.GetDay())

	if holiday != nil {
		return holiday.IsWork()
	}

	weekday := t.Weekday()
	return weekday != time.Saturday && weekday != time.Sunday
}

// AddBusinessDays walks forward from the given date by whole business days in
// the market's calendar.
func (s *DueDateService) AddBusinessDays(from time.Time, days int, countryCode string) time.Time {
	d := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for added := 0; added < days; {
		d = d.AddDate(0, 0, 1)
		if s.IsWorkday(d, countryCode) {
			added++
		}
	}
	return d
}

// DueDate returns the response deadline for a questionnaire generated from
// the report of the given date.
func (s *DueDateService) DueDate(countryCode string, reportDate time.Time) time.Time {
	return s.AddBusinessDays(reportDate, s.businessDays, countryCode)
}
