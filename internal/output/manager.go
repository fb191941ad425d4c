package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusSuccess = "success"
	StatusError   = "error"
	StatusWarning = "warning"
)

type downloadLine struct {
	ID          int
	Label       string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Err         error
}

type ErrorReport struct {
	Label string
	Err   error
	Time  time.Time
}

// Manager renders one line per download plus a few stream lines under it.
// Output is only redrawn in place when writing to a terminal; otherwise the
// summary is all that is printed.
type Manager struct {
	out         io.Writer
	interactive bool
	mutex       sync.RWMutex
	lines       map[int]*downloadLine
	count       int
	numLines    int
	maxStreams  int
	errors      []ErrorReport
	displayTick time.Duration
	doneCh      chan struct{}
	displayWg   sync.WaitGroup
}

func NewManager(out io.Writer) *Manager {
	interactive := false
	if f, ok := out.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &Manager{
		out:         out,
		interactive: interactive,
		lines:       make(map[int]*downloadLine),
		maxStreams:  6,
		displayTick: 300 * time.Millisecond,
		doneCh:      make(chan struct{}),
	}
}

func (m *Manager) Register(label string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.count++
	now := time.Now()
	m.lines[m.count] = &downloadLine{
		ID:          m.count,
		Label:       label,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
	}
	return m.count
}

func (m *Manager) update(id int, fn func(l *downloadLine)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if l, exists := m.lines[id]; exists {
		fn(l)
		l.LastUpdated = time.Now()
	}
}

func (m *Manager) SetMessage(id int, message string) {
	m.update(id, func(l *downloadLine) { l.Message = message })
}

func (m *Manager) SetStatus(id int, status string) {
	m.update(id, func(l *downloadLine) { l.Status = status })
}

func (m *Manager) GetStatus(id int) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if l, exists := m.lines[id]; exists {
		return l.Status
	}
	return "unknown"
}

// SetProgress replaces the stream lines of id with a progress bar.
func (m *Manager) SetProgress(id int, downloaded, total int64, speed float64, eta time.Duration) {
	display := fmt.Sprintf("%s %s %s %s %s",
		ProgressBar(downloaded, total, 30),
		StyleSymbols["bullet"], FormatSpeed(speed),
		StyleSymbols["bullet"], FormatETA(eta))
	m.update(id, func(l *downloadLine) {
		l.Status = StatusActive
		l.StreamLines = []string{display}
	})
}

func (m *Manager) AddStreamLine(id int, line string) {
	width, _ := terminalSize()
	wrapped := wrapText(line, width-8)
	m.update(id, func(l *downloadLine) {
		l.StreamLines = append(l.StreamLines, wrapped...)
		if len(l.StreamLines) > m.maxStreams {
			l.StreamLines = l.StreamLines[len(l.StreamLines)-m.maxStreams:]
		}
	})
}

func (m *Manager) Complete(id int, message string) {
	m.update(id, func(l *downloadLine) {
		l.StreamLines = nil
		l.Message = message
		if message == "" {
			l.Message = "Completed " + l.Label
		}
		l.Complete = true
		l.Status = StatusSuccess
	})
}

// Warn finishes id without counting it as a failure, e.g. when stopped.
func (m *Manager) Warn(id int, message string) {
	m.update(id, func(l *downloadLine) {
		l.StreamLines = nil
		l.Message = message
		l.Complete = true
		l.Status = StatusWarning
	})
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	l, exists := m.lines[id]
	if !exists {
		return
	}
	l.Complete = true
	l.Status = StatusError
	l.Err = err
	l.StreamLines = nil
	if l.Message == "" {
		l.Message = "Failed " + l.Label
	}
	l.LastUpdated = time.Now()
	m.errors = append(m.errors, ErrorReport{Label: l.Label, Err: err, Time: l.LastUpdated})
}

// Counts returns the number of successful and failed downloads.
func (m *Manager) Counts() (int, int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var success, failures int
	for _, l := range m.lines {
		switch l.Status {
		case StatusSuccess:
			success++
		case StatusError:
			failures++
		}
	}
	return success, failures
}

func (m *Manager) sorted() (active, completed []*downloadLine) {
	all := make([]*downloadLine, 0, len(m.lines))
	for _, l := range m.lines {
		all = append(all, l)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	for _, l := range all {
		if l.Complete {
			completed = append(completed, l)
		} else {
			active = append(active, l)
		}
	}
	return active, completed
}

func (m *Manager) indicator(status string) string {
	switch status {
	case StatusSuccess:
		return successStyle.Render(StyleSymbols["pass"])
	case StatusError:
		return errorStyle.Render(StyleSymbols["fail"])
	case StatusWarning:
		return warningStyle.Render(StyleSymbols["warning"])
	case StatusPending:
		return pendingStyle.Render(StyleSymbols["pending"])
	}
	return infoStyle.Render(StyleSymbols["bullet"])
}

// render writes every line and returns how many terminal rows it used.
func (m *Manager) render(maxLines int) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	active, completed := m.sorted()
	lineCount := 0
	emit := func(l *downloadLine) {
		if lineCount >= maxLines {
			return
		}
		elapsed := time.Since(l.StartTime)
		if l.Complete {
			elapsed = l.LastUpdated.Sub(l.StartTime)
		}
		message := l.Message
		if message == "" {
			message = "Waiting for " + l.Label
		}
		fmt.Fprintf(m.out, "  %s %s %s\n", m.indicator(l.Status),
			debugStyle.Render(elapsed.Round(time.Second).String()), styleFor(l.Status).Render(message))
		lineCount++
		for _, line := range l.StreamLines {
			if lineCount >= maxLines {
				return
			}
			fmt.Fprintf(m.out, "      %s\n", streamStyle.Render(line))
			lineCount++
		}
	}
	for _, l := range active {
		emit(l)
	}
	if len(completed) > 10 && lineCount < maxLines {
		fmt.Fprintf(m.out, "  %s\n", infoStyle.Render(fmt.Sprintf("%d downloads finished earlier ...", len(completed)-8)))
		completed = completed[len(completed)-8:]
		lineCount++
	}
	for _, l := range completed {
		emit(l)
	}
	return lineCount
}

func (m *Manager) redraw() {
	_, height := terminalSize()
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	m.numLines = m.render(height - 3)
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if m.interactive {
					m.redraw()
				}
			case <-m.doneCh:
				if m.interactive {
					m.redraw()
				} else {
					m.render(1 << 30)
				}
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) ShowSummary() {
	success, failures := m.Counts()
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	total := len(m.lines)
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, total)))
	if failures > 0 {
		fmt.Fprintln(m.out, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, total)))
	}
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+errorStyle.Bold(true).Render("Errors:"))
	for i, report := range m.errors {
		fmt.Fprintf(m.out, "    %s %s %s\n",
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", report.Time.Format("15:04:05"))),
			errorStyle.Render(report.Label))
		fmt.Fprintf(m.out, "      %s\n", errorStyle.Render(fmt.Sprint(report.Err)))
	}
}
