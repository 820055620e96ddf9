package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/auth"
)

func main() {
	var (
		baseURL    = flag.String("base-url", getenv("BASE_URL", "http://localhost:8090"), "calendar-sync-service base url")
		mode       = flag.String("mode", "webhook", "webhook: send a change notification; sync: trigger a manual sync")
		calendarID = flag.String("calendar-id", getenv("CALENDAR_ID", ""), "calendar id sent as the channel token")
		channelID  = flag.String("channel-id", getenv("CHANNEL_ID", ""), "channel id (random when empty)")
		resourceID = flag.String("resource-id", getenv("RESOURCE_ID", "sim-resource"), "resource id")
		state      = flag.String("state", "exists", "resource state: sync, exists or not_exists")
		msgNum     = flag.Int64("message-number", 0, "message number (defaults to the current unix time)")
		tenantID   = flag.String("tenant-id", getenv("TENANT_ID", ""), "tenant id for -mode sync")
		secret     = flag.String("jwt-secret", getenv("JWT_SECRET", ""), "HS256 secret for -mode sync")
	)
	flag.Parse()

	base := strings.TrimRight(*baseURL, "/")
	var req *http.Request
	var err error
	switch *mode {
	case "webhook":
		if strings.TrimSpace(*calendarID) == "" {
			fatal("CALENDAR_ID is required")
		}
		req, err = http.NewRequest(http.MethodPost, base+"/google_calendar/webhook", nil)
		if err != nil {
			fatal(err.Error())
		}
		if *channelID == "" {
			*channelID = "sim-" + uuid.NewString()
		}
		if *msgNum <= 0 {
			*msgNum = time.Now().Unix()
		}
		req.Header.Set("X-Goog-Channel-ID", *channelID)
		req.Header.Set("X-Goog-Channel-Token", *calendarID)
		req.Header.Set("X-Goog-Resource-ID", *resourceID)
		req.Header.Set("X-Goog-Resource-State", *state)
		req.Header.Set("X-Goog-Message-Number", strconv.FormatInt(*msgNum, 10))
	case "sync":
		if strings.TrimSpace(*tenantID) == "" || strings.TrimSpace(*secret) == "" {
			fatal("TENANT_ID and JWT_SECRET are required")
		}
		token, err := auth.SignHS256(auth.Claims{
			TenantID: *tenantID,
			Role:     "owner",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "gcal-webhook-sim",
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
			},
		}, *secret)
		if err != nil {
			fatal(err.Error())
		}
		req, err = http.NewRequest(http.MethodPost, base+"/api/v1/calendar/sync", nil)
		if err != nil {
			fatal(err.Error())
		}
		req.Header.Set("Authorization", "Bearer "+token)
	default:
		fatal("unsupported mode: " + *mode)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	fmt.Printf("status=%d\n%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
