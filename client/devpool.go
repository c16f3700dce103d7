package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/natefinch/atomic"
)

// fallbackDevAddresses is used when the donation-pool service cannot be
// reached and no cached addresses exist.
var fallbackDevAddresses = []string{
	"addr1v8sd2hwjvumewp3t4rtqz5uwejjv504tus5w279m5k6wkccm0j9gp",
	"addr1vyel9hlqeft4lwl5shgd28ryes3ejluug0lxhhusnvh2dyc0q92kw",
	"addr1vxl62mccauqktxyg59ehaskjk75na0pd4utrkvkv822ygsqqt28ph",
	"addr1vxenv7ucst58q9ju52mw9kjudlwelxnf53kd362jgq8qm5q68uh58",
	"addr1v8hf3d0tgnfn8zp2sgq2gdj9jy4dg6wyzd6uchlvq8n0pnsxp8232",
	"addr1v8vem45scpapkca8dpgcgdn2wfkg9jva950v8jjh47vrs3qf8sm6z",
	"addr1vyuyd9xxpex2ruzvejeduzknfcn2szyq46qfquxh6n4268qukppmq",
	"addr1vyrywe247atz5jzu9rspdf7lhvmhd550x45ck7qac295h9s3rs6zd",
	"addr1v86agy7h3mmphdpyru8tgrjjcpvuuqk8863jspqfd6n60lcxv0xmf",
	"addr1vx5dee9pqnq0r2aypl2ywueqjuvwg0s7dsc7eneyyr3d83g3a08c0",
	"addr1vx6wfs6z0vrwjutchfhmzk7tazsa09a9ptt8st00nmzshls2npktm",
	"addr1vx38ypke98t70r4rmkqdtm9c9eqdvjg8ytjc570javaqljcsp0q5h",
	"addr1v8mduamz9a7hghklsuug8szrhm4a0g5j8vxt7zsk2aetw9g8u2ak6",
	"addr1v99tha5x72jdh58rxp3c8amarac6ahf693xwwx4q9hpnnsqcv4nrd",
}

// DevPool hands out donation-target addresses and reports donated solutions
// back to the pool service. Fetched addresses are cached on disk so restarts
// keep the same slot-to-address mapping.
type DevPool struct {
	url       string
	password  string
	cacheFile string
	http      *http.Client
}

func NewDevPool(url, password, cacheFile string) *DevPool {
	return &DevPool{
		url:       url,
		password:  password,
		cacheFile: cacheFile,
		http:      &http.Client{Timeout: 5 * time.Second},
	}
}

// Addresses returns at least n donation addresses, fetching and caching any
// that are missing. On fetch failure it falls back to whatever is cached,
// topped up from the built-in pool.
func (p *DevPool) Addresses(ctx context.Context, n int) []string {
	addrs := p.loadCache()
	for len(addrs) < n {
		addr, err := p.fetchOne(ctx)
		if err != nil {
			return append(addrs, fallbackDevAddresses...)
		}
		addrs = append(addrs, addr)
	}
	p.saveCache(addrs)
	return addrs
}

// ReportDonation notifies the pool service that a solution was submitted on
// behalf of the donation address.
func (p *DevPool) ReportDonation(ctx context.Context, address string) error {
	payload, err := json.Marshal(map[string]string{"address": address})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/report_solution", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reporting donation: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (p *DevPool) fetchOne(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{"password": p.password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/get_dev_address", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Address string `json:"address"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Error != "" || body.Address == "" {
		return "", fmt.Errorf("dev pool refused: %s", body.Error)
	}
	return body.Address, nil
}

func (p *DevPool) loadCache() []string {
	data, err := os.ReadFile(p.cacheFile)
	if err != nil {
		return nil
	}
	var addrs []string
	if err := json.Unmarshal(data, &addrs); err != nil {
		return nil
	}
	return addrs
}

func (p *DevPool) saveCache(addrs []string) {
	data, err := json.MarshalIndent(addrs, "", "  ")
	if err != nil {
		return
	}
	// Best effort; losing the cache only re-fetches addresses next run.
	_ = atomic.WriteFile(p.cacheFile, bytes.NewReader(data))
}
