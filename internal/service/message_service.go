package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/rungroup/internal/domain"
)

// ErrNoScheduledRun is returned when the schedule has no matching run
var ErrNoScheduledRun = errors.New("no scheduled run")

// Intro pools. {routes} and {options} expand to counted nouns, {day} to
// the weekday name.
var genericIntros = []string{
	"We've got {routes} lined up and {options} this week:",
	"This {day} we've got {routes} planned and {options} to choose from:",
	"{routes}, {options} – something for everyone this {day}:",
	"Fancy joining us this week? We've planned {routes} and {options} for you this {day}:",
	"Come and join us on {day} for a chatty run, we've got {routes} and {options} to pick from:",
	"Your {day} is sorted – {routes} and {options} waiting for you:",
	"We've planned another great {day} meetup with {routes} and {options} to suit how you're feeling:",
	"From gentle chats to stretch-your-legs runs, we've got {routes} and {options} this week:",
	"Looking for some miles and smiles? We've lined up {routes} and {options}:",
	"Once again we've got {routes} and {options} ready – just book on and join the fun:",
}

var weatherIntros = map[domain.WeatherCategory][]string{
	domain.WeatherNice: {
		"Looks like a decent day for it – we've planned {routes} and {options} for you this {day}:",
		"With the weather playing nicely, it's a great week to join us for {routes} and {options}:",
		"Perfect excuse to get outside – {routes} and {options} waiting for you this {day}:",
	},
	domain.WeatherWet: {
		"It might be a bit soggy out there, but we'll be braving the elements with {routes} and {options} – come splash through the puddles with us:",
		"Rain on the forecast? All the more reason to join us – {routes} and {options} to keep things fun whatever the weather:",
		"Grab your waterproofs – we've still got {routes} and {options} lined up for a proper {day} outing:",
	},
	domain.WeatherCold: {
		"Chilly day ahead, but we'll soon warm up with {routes} and {options} to choose from:",
		"Layer up and join us this {day} – {routes} and {options} to keep you moving:",
		"Gloves and hats at the ready! We've planned {routes} and {options} for a crisp {day}:",
	},
	domain.WeatherWindy: {
		"It could be a bit breezy, but we'll lean into it together – {routes} and {options} this {day}:",
		"Wind in the hair, smiles all round – we've got {routes} and {options} lined up:",
	},
	domain.WeatherHot: {
		"It's looking warm out there – {routes} and {options}, just remember your water:",
		"A warm day ahead! We've got {routes} and {options} – stay hydrated:",
	},
}

var noRouteIntros = []string{
	"Join us this {day} for our weekly run:",
	"We're out again this {day} – come along:",
}

var terrainPhrases = map[string][]string{
	"flat":    {"flat and friendly 🏁", "fast & flat 🏁", "pan-flat cruise 💨"},
	"rolling": {"gently rolling 🌱", "undulating and friendly 🌿", "rolling countryside vibes 🌳"},
	"hilly":   {"a hilly tester! ⛰️", "spicy climbs ahead 🌶️", "some punchy hills 🚵"},
}

var emailHeadings = map[string]bool{
	"This week's routes":     true,
	"How to book":            true,
	"Additional information": true,
}

// routeView is a route with enrichment merged into the fields the sheet left empty
type routeView struct {
	Label      string
	Name       string
	URL        string
	DistanceKm *float64
	ElevationM *float64
}

func mergeRoutes(entry *domain.ScheduleEntry, enr *domain.Enrichment) []routeView {
	views := make([]routeView, 0, len(entry.Routes))
	for i, r := range entry.Routes {
		dist, elev := r.DistanceKm, r.ElevationM
		if stats := enr.RouteStatsAt(i); stats != nil {
			if dist == nil && stats.DistanceKm > 0 {
				d := stats.DistanceKm
				dist = &d
			}
			if elev == nil && stats.ElevationM > 0 {
				e := stats.ElevationM
				elev = &e
			}
		}
		views = append(views, routeView{
			Label:      domain.Route{Name: r.Name, DistanceKm: dist}.Label(),
			Name:       r.Name,
			URL:        r.URL,
			DistanceKm: dist,
			ElevationM: elev,
		})
	}
	return views
}

// messageData holds everything the three renderers share
type messageData struct {
	cfg       *domain.GroupConfig
	entry     *domain.ScheduleEntry
	routes    []routeView
	week      int
	greeting  string
	intro     string
	options   []string
	meeting   string
	forecast  string
	advice    string
	dateLabel string
	dayName   string
	startTime string
}

// Generate renders the email, social and chat announcements for one run.
// It has no side effects: the same inputs always give the same text.
// Missing enrichment is left out of the text.
func Generate(entry domain.ScheduleEntry, enr *domain.Enrichment, weekIndex int, cfg *domain.GroupConfig) domain.MessageSet {
	m := cfg.Messages
	var forecast *domain.Forecast
	if enr != nil {
		forecast = enr.Forecast
	}

	d := &messageData{
		cfg:       cfg,
		entry:     &entry,
		routes:    mergeRoutes(&entry, enr),
		week:      weekIndex,
		greeting:  pick(m.Greetings, weekIndex),
		dateLabel: FormatDateUK(entry.Date),
		dayName:   entry.Date.Weekday().String(),
		startTime: FormatTime12h(entry.StartTime),
	}

	for _, r := range d.routes {
		d.options = append(d.options, r.Label)
	}
	d.options = append(d.options, m.ExtraOptions...)

	pool := genericIntros
	if len(d.routes) == 0 {
		pool = noRouteIntros
	} else if extra, ok := weatherIntros[ClassifyWeather(forecast, m)]; ok {
		pool = append(append([]string(nil), extra...), genericIntros...)
	}
	d.intro = strings.NewReplacer(
		"{routes}", plural(len(d.routes), "route"),
		"{options}", plural(len(d.options), "option"),
		"{day}", d.dayName,
	).Replace(pick(pool, weekIndex))

	if entry.IsOnTour {
		d.meeting = fmt.Sprintf("📍 This week we're On Tour – meeting at %s at %s", entry.MeetingPoint, d.startTime)
	} else if entry.MeetingPoint != "" {
		d.meeting = fmt.Sprintf("📍 Meeting at: %s at %s", entry.MeetingPoint, d.startTime)
	}

	if forecast != nil {
		d.forecast = forecastLine(forecast, d.startTime)
		d.advice = WeatherAdvice(forecast, m)
	}

	set := domain.MessageSet{RunDate: entry.Date}
	if entry.IsCancelled {
		set.Email = d.cancelledEmail()
		set.Social = d.cancelledText(domain.ChannelSocial)
		set.Chat = d.cancelledText(domain.ChannelChat)
		return set
	}

	set.Email = d.email()
	set.Social = d.social()
	set.Chat = d.chat()
	return set
}

func (d *messageData) subject() string {
	return fmt.Sprintf("%s – this %s %s", d.cfg.Group.Name, d.dayName, d.dateLabel)
}

func (d *messageData) email() domain.GeneratedMessage {
	cfg := d.cfg
	var b textBuilder

	b.line(d.greeting)
	b.blank()
	b.line(d.intro)
	d.optionLines(&b, "")
	b.blank()
	b.line(d.meeting)
	b.blank()

	if len(d.routes) > 0 {
		b.line("This week's routes")
		b.blank()
		for _, r := range d.routes {
			b.line(d.routeLine(r, true))
		}
		b.blank()
	}

	if cfg.Booking.BookingURL != "" || cfg.Booking.CancellationURL != "" {
		b.line("How to book")
		b.blank()
		if cfg.Booking.BookingURL != "" {
			b.line("📲 Book your place: " + cfg.Booking.BookingURL)
		}
		if cfg.Booking.CancellationURL != "" {
			b.line("To cancel: " + cfg.Booking.CancellationURL)
		}
		b.blank()
	}

	safety := cfg.Messages.SafetyNote
	if safety != "" || d.advice != "" || d.forecast != "" {
		b.line("Additional information")
		b.blank()
		b.line(d.forecast)
		switch {
		case safety != "" && d.advice != "":
			b.line(safety + " Also " + lowerFirst(d.advice))
		case safety != "":
			b.line(safety)
		default:
			b.line(d.advice)
		}
		b.blank()
	}

	b.line(pick(cfg.Messages.EmailClosings, d.week))

	text := b.String()
	return domain.GeneratedMessage{
		Channel: domain.ChannelEmail,
		Subject: d.subject(),
		Text:    text,
		HTML:    textToHTML(text),
	}
}

func (d *messageData) social() domain.GeneratedMessage {
	cfg := d.cfg
	var b textBuilder

	b.line(d.subject())
	b.blank()
	b.line(d.greeting)
	b.line(d.intro)
	d.optionLines(&b, "")
	b.blank()
	b.line(d.meeting)
	b.blank()
	if cfg.Booking.BookingURL != "" {
		b.line("📲 Book your place: " + cfg.Booking.BookingURL)
		b.blank()
	}
	for _, r := range d.routes {
		b.line(d.routeLine(r, true))
	}
	b.blank()
	b.line(d.forecast)
	b.line(cfg.Messages.SafetyNote)
	b.line(d.advice)
	b.blank()
	b.line(pick(cfg.Messages.SocialClosings, d.week))

	return domain.GeneratedMessage{Channel: domain.ChannelSocial, Text: b.String()}
}

func (d *messageData) chat() domain.GeneratedMessage {
	cfg := d.cfg
	var b textBuilder

	b.line(fmt.Sprintf("*%s – %s %s*", cfg.Group.Name, d.dayName, d.dateLabel))
	b.blank()
	b.line(d.greeting)
	b.line(d.intro)
	d.optionLines(&b, "- ")
	b.blank()
	b.line(d.meeting)
	b.blank()
	if cfg.Booking.WebScheduleURL != "" {
		b.line("Route links for this week (and future runs):")
		b.line(cfg.Booking.WebScheduleURL)
		b.blank()
	}
	b.line(d.forecast)
	b.line(cfg.Messages.SafetyNote)
	b.line(d.advice)
	b.blank()
	if closing := pick(cfg.Messages.ChatClosings, d.week); closing != "" {
		b.line(fmt.Sprintf("*We set off at %s – %s*", d.startTime, lowerFirst(closing)))
	}

	return domain.GeneratedMessage{Channel: domain.ChannelChat, Text: b.String()}
}

func (d *messageData) cancelledLines(b *textBuilder) {
	b.line(d.greeting)
	b.blank()
	b.line(fmt.Sprintf("Just a heads up – there's no %s run this %s %s.", d.cfg.Group.Name, d.dayName, d.dateLabel))
	if d.entry.Notes != "" {
		b.line(d.entry.Notes)
	}
	b.blank()
	b.line("See you next week! 🧡")
}

func (d *messageData) cancelledEmail() domain.GeneratedMessage {
	var b textBuilder
	d.cancelledLines(&b)
	text := b.String()
	return domain.GeneratedMessage{
		Channel: domain.ChannelEmail,
		Subject: fmt.Sprintf("%s – no run this %s %s", d.cfg.Group.Name, d.dayName, d.dateLabel),
		Text:    text,
		HTML:    textToHTML(text),
	}
}

func (d *messageData) cancelledText(ch domain.Channel) domain.GeneratedMessage {
	var b textBuilder
	d.cancelledLines(&b)
	return domain.GeneratedMessage{Channel: ch, Text: b.String()}
}

func (d *messageData) optionLines(b *textBuilder, prefix string) {
	for _, opt := range d.options {
		emoji := "🏃"
		if strings.Contains(strings.ToLower(opt), "walk") {
			emoji = "🚶"
		}
		b.line(prefix + emoji + " " + opt)
	}
}

func (d *messageData) routeLine(r routeView, withURL bool) string {
	line := "• " + r.Label
	if r.Name != "" && r.Name != r.Label {
		line += " – " + r.Name
	}
	if withURL && r.URL != "" {
		line += ": " + r.URL
	}

	var details []string
	if r.DistanceKm != nil && *r.DistanceKm > 0 {
		details = append(details, fmt.Sprintf("%.1f km", *r.DistanceKm))
	}
	if r.ElevationM != nil && *r.ElevationM > 0 {
		details = append(details, fmt.Sprintf("%.0fm elevation", *r.ElevationM))
	}
	if len(details) == 0 {
		return line
	}

	detail := strings.Join(details, " with ")
	if t := terrain(r, d.week); t != "" {
		detail += " – " + t
	}
	return line + "\n  " + detail
}

// terrain describes the climb per km; both distance and elevation are needed
func terrain(r routeView, week int) string {
	if r.DistanceKm == nil || r.ElevationM == nil || *r.DistanceKm <= 0 {
		return ""
	}
	perKm := *r.ElevationM / *r.DistanceKm
	key := "hilly"
	switch {
	case perKm < 10:
		key = "flat"
	case perKm < 20:
		key = "rolling"
	}
	return pick(terrainPhrases[key], week)
}

func forecastLine(f *domain.Forecast, at string) string {
	line := fmt.Sprintf("🌤 Forecast for %s: %s, %.0f°C", at, f.Condition, f.TemperatureC)
	if f.PrecipitationProbability > 0 {
		line += fmt.Sprintf(", %d%% chance of rain", f.PrecipitationProbability)
	}
	if f.WindSpeedKmh > 30 {
		line += fmt.Sprintf(", wind %.0f km/h", f.WindSpeedKmh)
	}
	return line
}

// pick returns list[index mod len], or "" for an empty list
func pick(list []string, index int) string {
	if len(list) == 0 {
		return ""
	}
	i := index % len(list)
	if i < 0 {
		i += len(list)
	}
	return list[i]
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] == 'I' && (len(r) == 1 || r[1] == ' ' || r[1] == '\'') {
		return s
	}
	return strings.ToLower(string(r[0])) + string(r[1:])
}

// FormatDateUK formats a date as "1st June"
func FormatDateUK(t time.Time) string {
	return ordinal(t.Day()) + " " + t.Month().String()
}

func ordinal(n int) string {
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

// FormatTime12h turns "19:00" into "7pm" and "19:30" into "7:30pm".
// Unparsable input is returned unchanged; empty input means 7pm.
func FormatTime12h(hhmm string) string {
	hhmm = strings.TrimSpace(hhmm)
	if hhmm == "" {
		return "7pm"
	}
	hs, ms, _ := strings.Cut(hhmm, ":")
	hour, err := strconv.Atoi(hs)
	if err != nil || hour < 0 || hour > 23 {
		return hhmm
	}
	minute := 0
	if ms != "" {
		if minute, err = strconv.Atoi(ms); err != nil || minute < 0 || minute > 59 {
			return hhmm
		}
	}

	period := "am"
	if hour >= 12 {
		period = "pm"
	}
	h12 := hour % 12
	if h12 == 0 {
		h12 = 12
	}
	if minute == 0 {
		return fmt.Sprintf("%d%s", h12, period)
	}
	return fmt.Sprintf("%d:%02d%s", h12, minute, period)
}

// textToHTML escapes the text, bolds section headings and joins lines with <br>
func textToHTML(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if emailHeadings[strings.TrimSpace(line)] {
			lines[i] = "<b>" + html.EscapeString(strings.TrimSpace(line)) + "</b>"
			continue
		}
		lines[i] = html.EscapeString(line)
	}
	return strings.Join(lines, "<br>")
}

// textBuilder collects lines, dropping empty ones and collapsing runs of blanks
type textBuilder struct {
	lines []string
}

func (b *textBuilder) line(s string) {
	if s == "" {
		return
	}
	b.lines = append(b.lines, s)
}

func (b *textBuilder) blank() {
	if len(b.lines) == 0 || b.lines[len(b.lines)-1] == "" {
		return
	}
	b.lines = append(b.lines, "")
}

func (b *textBuilder) String() string {
	lines := b.lines
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// MessageService runs the compose chain: schedule, enrichment, generation
type MessageService struct {
	schedule   *ScheduleService
	enrichment *EnrichmentService
}

func NewMessageService(schedule *ScheduleService, enrichment *EnrichmentService) *MessageService {
	return &MessageService{schedule: schedule, enrichment: enrichment}
}

// Composition is a generated message set together with its inputs
type Composition struct {
	Entry      domain.ScheduleEntry
	Enrichment *domain.Enrichment
	WeekIndex  int
	Messages   domain.MessageSet
}

// Compose generates messages for the run on dateKey (YYYY-MM-DD), or for
// the next run when dateKey is empty. A nil weekIndex uses the ISO week.
func (s *MessageService) Compose(ctx context.Context, cfg *domain.GroupConfig, dateKey string, weekIndex *int) (*Composition, error) {
	entries, err := s.schedule.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s.ComposeFrom(ctx, cfg, entries, dateKey, weekIndex)
}

// ComposeFrom is Compose over an already loaded schedule
func (s *MessageService) ComposeFrom(ctx context.Context, cfg *domain.GroupConfig, entries []domain.ScheduleEntry, dateKey string, weekIndex *int) (*Composition, error) {
	var entry *domain.ScheduleEntry
	if dateKey == "" {
		entry = s.schedule.Next(entries, cfg)
	} else {
		entry = FindByDate(entries, dateKey)
	}
	if entry == nil {
		if dateKey == "" {
			return nil, ErrNoScheduledRun
		}
		return nil, fmt.Errorf("%s: %w", dateKey, ErrNoScheduledRun)
	}

	week := entry.WeekIndex()
	if weekIndex != nil {
		week = *weekIndex
	}

	var enr *domain.Enrichment
	if s.enrichment != nil && !entry.IsCancelled {
		enr = s.enrichment.EnrichEntry(ctx, cfg, entry)
	}

	return &Composition{
		Entry:      *entry,
		Enrichment: enr,
		WeekIndex:  week,
		Messages:   Generate(*entry, enr, week, cfg),
	}, nil
}
