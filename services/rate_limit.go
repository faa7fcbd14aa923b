package services

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/shared"
	log "github.com/sirupsen/logrus"
)

const RATE_LIMIT_SVC = "rate_limit_svc"

const (
	EndpointCertificateIssue  = "certificate_issue"
	EndpointCertificateVerify = "certificate_verify"
)

type windowCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	EndpointType string
	MaxRequests  int
	WindowSize   time.Duration
	Description  string
	IsActive     bool
}

// RateLimitService counts requests in fixed redis windows. Without redis
// every request is allowed.
type RateLimitService struct {
	appContext.DefaultService

	configs map[string]*RateLimitConfig
	mutex   sync.RWMutex

	counter windowCounter
	now     func() time.Time
}

func NewRateLimitService(counter windowCounter) *RateLimitService {
	svc := &RateLimitService{counter: counter, now: time.Now}
	svc.initDefaultConfigs()
	return svc
}

func (svc *RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	svc.now = time.Now
	svc.initDefaultConfigs()
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	if redisSvc, ok := svc.Service(REDIS_SVC).(*RedisService); ok && redisSvc.Available() {
		svc.counter = redisSvc
	} else {
		log.Printf("Rate limiting disabled: redis not configured")
	}
	return nil
}

func (svc *RateLimitService) Shutdown() {}

func (svc *RateLimitService) initDefaultConfigs() {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	svc.configs = map[string]*RateLimitConfig{
		EndpointCertificateIssue: {
			EndpointType: EndpointCertificateIssue,
			MaxRequests:  shared.GetEnvInt("RATE_LIMIT_ISSUE_MAX", 5),
			WindowSize:   shared.GetEnvDuration("RATE_LIMIT_ISSUE_WINDOW", 10*time.Minute),
			Description:  "Certificate issuance per user",
			IsActive:     true,
		},
		EndpointCertificateVerify: {
			EndpointType: EndpointCertificateVerify,
			MaxRequests:  shared.GetEnvInt("RATE_LIMIT_VERIFY_MAX", 60),
			WindowSize:   shared.GetEnvDuration("RATE_LIMIT_VERIFY_WINDOW", time.Minute),
			Description:  "Certificate verification per IP",
			IsActive:     true,
		},
	}
}

func (svc *RateLimitService) IsAllowed(ctx context.Context, identifier, endpointType string) (bool, *dto.RateLimitInfo, error) {
	svc.mutex.RLock()
	config, exists := svc.configs[endpointType]
	svc.mutex.RUnlock()

	if !exists || !config.IsActive || svc.counter == nil {
		return true, &dto.RateLimitInfo{Allowed: true, Remaining: -1}, nil
	}

	key := fmt.Sprintf("rate-limit:%s:%s", endpointType, identifier)
	count, ttl, err := svc.counter.IncrementWindow(ctx, key, config.WindowSize)
	if err != nil {
		return false, nil, err
	}

	resetTime := svc.now().Add(ttl)
	remaining := config.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	info := &dto.RateLimitInfo{
		Allowed:   int(count) <= config.MaxRequests,
		Limit:     config.MaxRequests,
		Remaining: remaining,
		ResetTime: &resetTime,
	}
	return info.Allowed, info, nil
}

// RateLimit limits an endpoint by authenticated user, falling back to IP.
func (svc *RateLimitService) RateLimit(endpointType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := getClientIP(c)
		if userID, ok := c.Locals(shared.UserID).(string); ok && userID != "" {
			identifier = userID
		}

		allowed, info, err := svc.IsAllowed(c.UserContext(), identifier, endpointType)
		if err != nil {
			log.Printf("Rate limit check error for %s (%s): %v", endpointType, identifier, err)
			return c.Next()
		}

		svc.addRateLimitHeaders(c, info)

		if !allowed {
			rateLimitRejectionsTotal.WithLabelValues(endpointType).Inc()
			return svc.handleRateLimitExceeded(c, endpointType, info)
		}

		return c.Next()
	}
}

func (svc *RateLimitService) addRateLimitHeaders(c *fiber.Ctx, info *dto.RateLimitInfo) {
	if info == nil || info.Remaining < 0 {
		return
	}

	c.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))

	if info.ResetTime != nil {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
		if !info.Allowed {
			retryAfter := int(info.ResetTime.Sub(svc.now()).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set("Retry-After", strconv.Itoa(retryAfter))
		}
	}
}

func (svc *RateLimitService) handleRateLimitExceeded(c *fiber.Ctx, endpointType string, info *dto.RateLimitInfo) error {
	message := svc.getRateLimitMessage(endpointType)

	response := map[string]interface{}{
		"error": "Rate limit exceeded",
	}
	if info.ResetTime != nil {
		response["reset_at"] = info.ResetTime.Unix()
	}

	return shared.ResponseJSON(c, http.StatusTooManyRequests, message, response)
}

func (svc *RateLimitService) getRateLimitMessage(endpointType string) string {
	messages := map[string]string{
		EndpointCertificateIssue:  "Too many certificate requests. Please try again later.",
		EndpointCertificateVerify: "Too many verification requests. Please slow down.",
	}

	if message, exists := messages[endpointType]; exists {
		return message
	}

	return "Too many requests. Please try again later."
}

func getClientIP(c *fiber.Ctx) string {
	// Check for forwarded IP first (for load balancers/proxies)
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}

	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	if cfIP := c.Get("CF-Connecting-IP"); cfIP != "" {
		return cfIP
	}

	ip, _, err := net.SplitHostPort(c.Context().RemoteAddr().String())
	if err != nil {
		return c.Context().RemoteAddr().String()
	}

	return ip
}
