// config/config.go
package config

import (
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	Port          string
	MongoURI      string
	MongoDB       string
	JWTKey        []byte
	JWTExpiration time.Duration
	BcryptCost    int

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	DashboardCacheTTL time.Duration

	SchedulerTimezone    *time.Location
	AuditSchedulerCron   string
	MaintenanceSweepCron string
	InvoiceSweepCron     string
	DeadStockSweepCron   string

	LoginRatePerSec float64
	LoginBurst      int
	TrustedProxies  []*net.IPNet

	FrontendDir string
	LogDir      string

	AdminEmail    string
	AdminPassword string
)

func LoadConfig() {
	Port = getEnv("PORT", "8080")

	MongoURI = os.Getenv("MONGODB_URI")
	if MongoURI == "" {
		MongoURI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	}
	MongoDB = getEnv("MONGO_DB", "deadstock")

	JWTKey = []byte(os.Getenv("JWT_SECRET"))
	if len(JWTKey) == 0 {
		log.Println("WARNING: JWT_SECRET not set, using insecure default")
		JWTKey = []byte("secret")
	}
	JWTExpiration = parseExpire(os.Getenv("JWT_EXPIRE"))
	BcryptCost = getEnvInt("BCRYPT_COST", 12)

	RedisAddr = os.Getenv("REDIS_ADDR")
	RedisPassword = os.Getenv("REDIS_PASSWORD")
	RedisDB = getEnvInt("REDIS_DB", 0)
	DashboardCacheTTL = getEnvDuration("DASHBOARD_CACHE_TTL", time.Minute)

	tz := getEnv("SCHEDULER_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("Invalid SCHEDULER_TIMEZONE: %s, using UTC", tz)
		loc = time.UTC
	}
	SchedulerTimezone = loc
	AuditSchedulerCron = getEnv("AUDIT_SCHEDULER_CRON", "* * * * *")
	MaintenanceSweepCron = getEnv("MAINTENANCE_SWEEP_CRON", "0 * * * *")
	InvoiceSweepCron = getEnv("INVOICE_SWEEP_CRON", "30 0 * * *")
	DeadStockSweepCron = getEnv("DEAD_STOCK_SWEEP_CRON", "0 2 * * *")

	LoginRatePerSec = getEnvFloat("LOGIN_RATE_PER_SEC", 1)
	LoginBurst = getEnvInt("LOGIN_BURST", 5)
	TrustedProxies = parseProxies(os.Getenv("TRUSTED_PROXIES"))

	FrontendDir = getEnv("FRONTEND_DIR", "../frontend")
	LogDir = getEnv("LOG_DIR", "logs")

	AdminEmail = os.Getenv("ADMIN_EMAIL")
	AdminPassword = os.Getenv("ADMIN_PASSWORD")
}

// parseExpire accepts Go durations plus the "7d" shorthand used by the frontend config.
func parseExpire(s string) time.Duration {
	dur := 24 * time.Hour
	if s == "" {
		return dur
	}
	if s == "7d" {
		return 7 * 24 * time.Hour
	}
	parsed, err := time.ParseDuration(s)
	if err != nil || parsed <= 0 {
		log.Printf("Invalid JWT_EXPIRE: %s, using 24h", s)
		return dur
	}
	return parsed
}

// parseProxies reads a comma separated list of IPs or CIDRs. Forwarding
// headers are only honoured when the peer is in this list.
func parseProxies(s string) []*net.IPNet {
	var nets []*net.IPNet
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			if ip := net.ParseIP(part); ip != nil && ip.To4() != nil {
				part += "/32"
			} else {
				part += "/128"
			}
		}
		_, n, err := net.ParseCIDR(part)
		if err != nil {
			log.Printf("Invalid TRUSTED_PROXIES entry: %s, skipping", part)
			continue
		}
		nets = append(nets, n)
	}
	return nets
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s: %s, using %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("Invalid %s: %s, using %v", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid %s: %s, using %s", key, v, def)
		return def
	}
	return d
}
