package httpapi

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/luki/airdash/internal/aqi"
	"github.com/luki/airdash/internal/card"
	"github.com/luki/airdash/internal/poller"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// pageData is the view model for the dashboard page.
type pageData struct {
	RefreshSeconds int
	Endpoint       string
	HasReading     bool
	Loading        bool
	Error          string

	DeviceID string
	Updated  string
	AQI      string
	AQILabel string
	Category string
	Color    string
	Groups   []card.Group
}

func newPageData(s poller.State, endpoint string, interval time.Duration) pageData {
	d := pageData{
		RefreshSeconds: max(int(interval.Round(time.Second)/time.Second), 1),
		Endpoint:       endpoint,
		HasReading:     s.HasReading,
		Loading:        s.Loading,
	}
	if s.Err != nil {
		d.Error = s.Err.Error()
	}
	if !s.HasReading {
		return d
	}

	r := s.Reading
	band := aqi.Classify(r.AQIValue)
	d.DeviceID = r.DeviceID
	d.AQI = fmt.Sprintf("%.0f", r.AQIValue)
	d.AQILabel, _ = r.AQILabel()
	d.Category = band.Category
	d.Color = band.Hex
	d.Groups = card.Groups(r)

	t, ok := r.Time()
	if !ok {
		t = s.UpdatedAt
	}
	d.Updated = t.Local().Format("2006-01-02 15:04:05")
	return d
}

func renderPage(w io.Writer, d pageData) error {
	return pageTmpl.ExecuteTemplate(w, "dashboard.html", d)
}
