package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"classfinder/internal/cache"
	"classfinder/internal/freeslot"
	"classfinder/internal/gviz"
	appLog "classfinder/internal/log"
	"classfinder/internal/model"
	"classfinder/internal/search"
	"classfinder/internal/sheet"
)

var (
	// ErrInvalidQuery is returned for a blank search query.
	ErrInvalidQuery = errors.New("search query is empty")
	// ErrDataNotReady means no schedule is loaded for the day yet. A load
	// has been started; retry shortly.
	ErrDataNotReady = freeslot.ErrDataNotReady
)

// GridSource fetches one raw sheet tab. *gviz.Fetcher implements it.
type GridSource interface {
	Fetch(ctx context.Context, tab string) (*gviz.Grid, error)
}

// Options configures a Service.
type Options struct {
	// Tabs holds the tab identifier per weekday, Monday first. Missing
	// entries default to the day name.
	Tabs   []string
	Parser sheet.Options
	Finder *freeslot.Finder

	// FetchTimeout bounds a shared load. It applies even when every
	// waiter has gone away.
	FetchTimeout time.Duration

	// Location decides which day "today" is.
	Location *time.Location
	Now      func() time.Time
}

// Service is the entry point for day, week, search and free-slot
// operations. It is safe for concurrent use.
type Service struct {
	src     GridSource
	cache   *cache.Cache
	tabs    [5]string
	parser  sheet.Options
	finder  *freeslot.Finder
	timeout time.Duration
	loc     *time.Location
	now     func() time.Time

	group singleflight.Group
	bg    sync.WaitGroup
}

func New(src GridSource, c *cache.Cache, opts Options) *Service {
	s := &Service{
		src:     src,
		cache:   c,
		parser:  opts.Parser,
		finder:  opts.Finder,
		timeout: opts.FetchTimeout,
		loc:     opts.Location,
		now:     opts.Now,
	}
	for i, d := range model.Weekdays {
		s.tabs[i] = d.String()
		if i < len(opts.Tabs) && strings.TrimSpace(opts.Tabs[i]) != "" {
			s.tabs[i] = strings.TrimSpace(opts.Tabs[i])
		}
	}
	if s.finder == nil {
		s.finder = &freeslot.Finder{}
	}
	if s.timeout <= 0 {
		s.timeout = gviz.DefaultTimeout
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Now is the current time in the configured location.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// Selector parses a day selector relative to the current time.
func (s *Service) Selector(raw string) (Selector, error) {
	return ParseDaySelector(raw, s.Now())
}

// DayResult is one day's schedule together with its encoded form.
// Payload is the exact cached byte representation.
type DayResult struct {
	Schedule *model.DaySchedule
	Payload  json.RawMessage
	Cached   bool
	// Stale is set when the upstream failed and an expired entry was
	// served instead. The upstream error is returned alongside.
	Stale bool
}

type loaded struct {
	schedule *model.DaySchedule
	payload  []byte
}

// Day returns the schedule of one day from the cache, or fetches and
// parses it. When the fetch fails and an older entry exists, that entry is
// returned with Stale set, together with the error.
func (s *Service) Day(ctx context.Context, day model.Weekday) (DayResult, error) {
	if !day.Valid() {
		return DayResult{}, fmt.Errorf("%w: day %d", ErrInvalidDaySelector, int(day))
	}
	key := cache.DayKey(int(day))

	if b, ok := s.cache.Get(ctx, key); ok {
		ds, err := decodeDay(b)
		if err == nil {
			return DayResult{Schedule: ds, Payload: b, Cached: true}, nil
		}
		appLog.Warn("dropping undecodable cache entry", "day", day, "err", err)
	}

	ld, err := s.load(ctx, day)
	if err == nil {
		return DayResult{Schedule: ld.schedule, Payload: ld.payload}, nil
	}
	if ctx.Err() != nil {
		return DayResult{}, err
	}

	if e, ok := s.cache.Stale(ctx, key); ok {
		if ds, derr := decodeDay(e.Value); derr == nil {
			appLog.Warn("serving stale schedule", "day", day, "age", s.now().Sub(e.StoredAt).Round(time.Second), "err", err)
			return DayResult{Schedule: ds, Payload: e.Value, Cached: true, Stale: true}, err
		}
	}
	return DayResult{}, err
}

// load fetches a day, sharing one upstream call between concurrent
// callers. The shared call does not inherit the caller's cancellation; a
// cancelled caller stops waiting and its result is discarded.
func (s *Service) load(ctx context.Context, day model.Weekday) (*loaded, error) {
	ch := s.group.DoChan(cache.DayKey(int(day)), func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.fetchDay(lctx, day)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*loaded), nil
	}
}

func (s *Service) fetchDay(ctx context.Context, day model.Weekday) (*loaded, error) {
	tab := s.tabs[day]
	start := time.Now()
	appLog.Debug("fetching day", "day", day, "tab", tab)

	grid, err := s.src.Fetch(ctx, tab)
	if err != nil {
		appLog.Error("fetch day failed", err, "day", day, "tab", tab, "duration", time.Since(start).Round(time.Millisecond))
		return nil, fmt.Errorf("fetch %s: %w", day, err)
	}

	res := sheet.Parse(grid, s.parser)
	ds := &model.DaySchedule{
		Day:        day,
		DayName:    day.String(),
		Classrooms: res.Classrooms,
		TimeSlots:  res.TimeSlots,
	}
	payload, err := json.Marshal(ds)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", day, err)
	}
	if err := s.cache.Set(ctx, cache.DayKey(int(day)), payload); err != nil {
		appLog.Warn("cache write failed", "day", day, "err", err)
	}

	appLog.Info("fetched day", "day", day, "tab", tab,
		"classrooms", len(ds.Classrooms), "slots", len(ds.TimeSlots),
		"duration", time.Since(start).Round(time.Millisecond))
	return &loaded{schedule: ds, payload: payload}, nil
}

func decodeDay(b []byte) (*model.DaySchedule, error) {
	var ds model.DaySchedule
	if err := json.Unmarshal(b, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// days runs Day for each day concurrently.
func (s *Service) days(ctx context.Context, days []model.Weekday) ([]DayResult, []error) {
	results := make([]DayResult, len(days))
	errs := make([]error, len(days))
	var wg sync.WaitGroup
	for i, d := range days {
		i, d := i, d
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.Day(ctx, d)
		}()
	}
	wg.Wait()
	return results, errs
}

// WeekResult holds every day that could be loaded. Days that failed are
// absent from Days; every day with an error, stale ones included, is
// listed in Errors.
type WeekResult struct {
	Days   model.WeekSchedule
	Errors map[string]string
	Cached bool
	Stale  bool
}

// Week loads all five days concurrently. It fails only when no day could
// be loaded.
func (s *Service) Week(ctx context.Context) (WeekResult, error) {
	results, errs := s.days(ctx, model.Weekdays)

	out := WeekResult{Days: model.WeekSchedule{}, Errors: map[string]string{}, Cached: true}
	var firstErr error
	for i, d := range model.Weekdays {
		if errs[i] != nil {
			out.Errors[d.String()] = errs[i].Error()
			if firstErr == nil {
				firstErr = errs[i]
			}
		}
		r := results[i]
		if r.Schedule == nil {
			continue
		}
		out.Days[d.String()] = *r.Schedule
		out.Cached = out.Cached && r.Cached
		out.Stale = out.Stale || r.Stale
	}
	if len(out.Days) == 0 {
		out.Cached = false
		return out, firstErr
	}
	return out, nil
}

// SearchResult maps day names to their hits. Days without hits are
// omitted.
type SearchResult struct {
	Results map[string][]model.SearchResultItem `json:"results"`
	Total   int                                 `json:"total"`
	Errors  map[string]string                   `json:"errors,omitempty"`

	Cached bool `json:"-"`
	Stale  bool `json:"-"`
}

// Search runs query over the selected days. Complete results are cached
// per (selector, query).
func (s *Service) Search(ctx context.Context, query, selector string) (SearchResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return SearchResult{}, ErrInvalidQuery
	}
	if selector == "" {
		selector = "all"
	}
	sel, err := s.Selector(selector)
	if err != nil {
		return SearchResult{}, err
	}

	key := cache.SearchKey(sel.String(), q)
	if b, ok := s.cache.Get(ctx, key); ok {
		var r SearchResult
		if err := json.Unmarshal(b, &r); err == nil {
			r.Cached = true
			return r, nil
		}
	}

	days := sel.Days()
	results, errs := s.days(ctx, days)

	out := SearchResult{Results: map[string][]model.SearchResultItem{}}
	complete := true
	var firstErr error
	loaded := 0
	for i, d := range days {
		if errs[i] != nil {
			complete = false
			if out.Errors == nil {
				out.Errors = map[string]string{}
			}
			out.Errors[d.String()] = errs[i].Error()
			if firstErr == nil {
				firstErr = errs[i]
			}
		}
		r := results[i]
		if r.Schedule == nil {
			continue
		}
		loaded++
		out.Stale = out.Stale || r.Stale
		items := search.Search(d, r.Schedule.Classrooms, q)
		if len(items) == 0 {
			continue
		}
		out.Results[d.String()] = items
		out.Total += len(items)
	}
	if loaded == 0 {
		return SearchResult{}, firstErr
	}

	if complete {
		if b, err := json.Marshal(out); err == nil {
			if err := s.cache.Set(ctx, key, b); err != nil {
				appLog.Warn("cache write failed", "query", q, "err", err)
			}
		}
	}
	appLog.Debug("search", "query", q, "days", sel.String(), "total", out.Total)
	return out, nil
}

// current returns the loaded schedule for day without fetching, fresh or
// expired. An expired or missing entry starts a background load; a
// missing one yields ErrDataNotReady.
func (s *Service) current(ctx context.Context, day model.Weekday) (*model.DaySchedule, error) {
	if !day.Valid() {
		return nil, fmt.Errorf("%w: day %d", ErrInvalidDaySelector, int(day))
	}
	e, ok := s.cache.Stale(ctx, cache.DayKey(int(day)))
	if !ok {
		s.loadInBackground(day)
		return nil, ErrDataNotReady
	}
	if s.now().Sub(e.StoredAt) >= s.cache.TTL() {
		s.loadInBackground(day)
	}
	ds, err := decodeDay(e.Value)
	if err != nil {
		s.loadInBackground(day)
		return nil, ErrDataNotReady
	}
	return ds, nil
}

func (s *Service) loadInBackground(day model.Weekday) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if _, err := s.load(context.Background(), day); err != nil {
			appLog.Warn("background load failed", "day", day, "err", err)
		}
	}()
}

// FreeRooms lists rooms free for every slot starting in [start, end) on
// day.
func (s *Service) FreeRooms(ctx context.Context, day model.Weekday, start, end string) ([]model.Room, error) {
	ds, err := s.current(ctx, day)
	if err != nil {
		return nil, err
	}
	return s.finder.FreeRoomsInRange(ds, start, end)
}

// FreeRanges lists the free time ranges on day for a room or class query.
func (s *Service) FreeRanges(ctx context.Context, day model.Weekday, query string) ([]model.FreeRange, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}
	ds, err := s.current(ctx, day)
	if err != nil {
		return nil, err
	}
	return s.finder.FreeRangesForQuery(ds, query)
}

// Invalidate drops every cached schedule and search result.
func (s *Service) Invalidate(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	appLog.Info("cache invalidated")
	return nil
}

// Refresh fetches every day from upstream, bypassing fresh cache entries.
func (s *Service) Refresh(ctx context.Context) error {
	errs := make([]error, len(model.Weekdays))
	var wg sync.WaitGroup
	for i, d := range model.Weekdays {
		i, d := i, d
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.load(ctx, d)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
