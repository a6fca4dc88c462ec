package rtb

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/adxyz/adserve/pkg/ads"
	"github.com/adxyz/adserve/pkg/sales"
)

var ErrNoImpressions = errors.New("bid request has no impressions")

// FromOpenRTB maps an OpenRTB 2.x bid request onto the internal
// programmatic bid shape so demand partners can reach the sales surface
// over the standard wire format.
func FromOpenRTB(r *openrtb2.BidRequest) (*sales.BidRequest, error) {
	if len(r.Imp) == 0 {
		return nil, ErrNoImpressions
	}

	imp := r.Imp[0]
	placement := imp.TagID
	if placement == "" {
		placement = imp.ID
	}

	bid := &sales.BidRequest{
		BidID:       r.ID,
		PlacementID: placement,
		Context: ads.AdContext{
			Topics:   siteCategories(r),
			Keywords: siteKeywords(r),
		},
		Privacy: ads.PrivacySettings{
			Consent:          ads.ConsentFlags{Advertising: hasAdvertisingConsent(r)},
			ConsentTimestamp: time.Now(),
		},
		SessionID: sessionID(r),
		Timestamp: time.Now(),
	}
	return bid, nil
}

// DeviceType maps the OpenRTB device type enum to the internal label.
func DeviceType(d *openrtb2.Device) string {
	if d == nil {
		return "unknown"
	}
	switch d.DeviceType {
	case 3:
		return "ctv"
	case 4, 5:
		return "mobile"
	default:
		return "desktop"
	}
}

func siteKeywords(r *openrtb2.BidRequest) []string {
	var raw string
	if r.Site != nil {
		raw = r.Site.Keywords
	} else if r.App != nil {
		raw = r.App.Keywords
	}
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func siteCategories(r *openrtb2.BidRequest) []string {
	if r.Site != nil {
		return r.Site.Cat
	}
	if r.App != nil {
		return r.App.Cat
	}
	return nil
}

// hasAdvertisingConsent treats a request as consented when the user ext
// carries a consent string, or when GDPR is not signaled at all.
func hasAdvertisingConsent(r *openrtb2.BidRequest) bool {
	if r.User != nil && len(r.User.Ext) > 0 {
		var ext struct {
			Consent string `json:"consent"`
		}
		if err := json.Unmarshal(r.User.Ext, &ext); err == nil && ext.Consent != "" {
			return true
		}
	}
	if r.Regs != nil && len(r.Regs.Ext) > 0 {
		var ext struct {
			GDPR *int `json:"gdpr"`
		}
		if err := json.Unmarshal(r.Regs.Ext, &ext); err == nil && ext.GDPR != nil && *ext.GDPR == 1 {
			// GDPR applies and no consent string was found above.
			return false
		}
	}
	return true
}

func sessionID(r *openrtb2.BidRequest) string {
	if r.User != nil && r.User.ID != "" {
		return r.User.ID
	}
	return "rtb-" + r.ID
}
