package market

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const nseHolidayURL = "https://www.nseindia.com/resources/exchange-communication-holidays"

// FetchNSEHolidays scrapes the exchange's holiday page and returns trading
// holiday dates as YYYY-MM-DD strings. The NSE site refuses bare requests,
// so the session is primed against the home page first, same as the
// instrument universe download.
func FetchNSEHolidays(client *http.Client) ([]string, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequest(http.MethodGet, nseHolidayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create holiday request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch holiday page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("holiday page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse holiday page: %w", err)
	}

	return parseHolidayTable(doc), nil
}

// parseHolidayTable pulls dates out of the first table whose rows carry a
// date-looking cell. The page lists dates as "26-Jan-2026".
func parseHolidayTable(doc *goquery.Document) []string {
	var out []string
	seen := make(map[string]bool)
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		row.Find("td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			text := strings.TrimSpace(cell.Text())
			d, err := time.Parse("02-Jan-2006", text)
			if err != nil {
				return true // keep scanning this row
			}
			key := d.Format("2006-01-02")
			if !seen[key] {
				seen[key] = true
				out = append(out, key)
			}
			return false
		})
	})
	return out
}

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/94.0.4606.61 Safari/537.36"
