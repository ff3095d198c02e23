// File: cmd/seed/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"license-activation-service/internal/config"
	"license-activation-service/internal/domain/model"
	pg "license-activation-service/internal/infra/db/postgres"
	"license-activation-service/internal/infra/events"
	"license-activation-service/internal/infra/logging"
	red "license-activation-service/internal/infra/redis"
	"license-activation-service/internal/infra/security"
	"license-activation-service/internal/infra/worker"
	"license-activation-service/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	action := flag.String("action", "issue", "issue|suspend|revoke|reactivate|renew|reveal|suspicious")
	id := flag.String("id", "", "credential id (all actions except issue)")
	count := flag.Int("count", 1, "number of credentials to issue")
	product := flag.String("product", "default", "product id")
	customer := flag.String("customer", "seed-customer", "customer id")
	tierFlag := flag.String("tier", "pro", "free|pro|agency")
	limit := flag.Int("limit", 1, "activation limit (sites)")
	days := flag.Int("days", 365, "validity in days; 0 issues a lifetime credential (issue, renew)")
	domains := flag.String("domains", "", "comma-separated allowed domains, e.g. example.com,*.example.org")
	ips := flag.String("ips", "", "comma-separated allowed IPs or CIDRs")
	hardware := flag.String("hardware", "", "required hardware id")
	caller := flag.String("caller", "", "identifier to check (suspicious); empty lists all flagged callers")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// Restriction writes go through the cache decorator so a running service
	// does not keep serving a stale set.
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()

	sealer, err := security.NewKeySealer(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("key sealer: %v", err)
	}

	eventPool := worker.NewPool(1, 64, logger)
	eventPool.Start(context.Background())
	defer eventPool.Stop()
	dispatcher := events.NewDispatcher(eventPool, cfg.Events.DeliveryTimeout, logger, events.NewAuditSubscriber(logger))

	issuer := usecase.NewIssuer(
		pg.NewCredentialRepo(pool),
		pg.NewRestrictionRepoCacheDecorator(pg.NewRestrictionRepo(pool), redisClient, cfg.Redis.TTL),
		pg.NewTxManager(pool),
		security.NewKeyCodec(cfg.Security.KeyPepper),
		sealer,
		dispatcher,
		logger,
	)

	if *action == "suspicious" {
		attempts := usecase.NewAttemptLogger(pg.NewAttemptRepo(pool), cfg.Abuse.FailureWindow, cfg.Abuse.FailureThreshold, logger)
		if *caller != "" {
			flagged, err := attempts.IsSuspicious(ctx, *caller)
			if err != nil {
				log.Fatalf("suspicious: %v", err)
			}
			fmt.Printf("%s  suspicious=%t\n", *caller, flagged)
			return
		}
		ids, err := attempts.SuspiciousIdentifiers(ctx, time.Now().UTC().Add(-cfg.Abuse.FailureWindow), cfg.Abuse.FailureThreshold)
		if err != nil {
			log.Fatalf("suspicious: %v", err)
		}
		for _, s := range ids {
			fmt.Printf("%s  failures=%d last_seen=%s\n", s.Identifier, s.Failures, s.LastSeen.Format(time.RFC3339))
		}
		return
	}

	if *action != "issue" && *id == "" {
		fmt.Fprintln(os.Stderr, "-id is required for", *action)
		os.Exit(2)
	}

	var c *model.Credential
	switch *action {
	case "issue":
		tier, ok := model.ParseTier(*tierFlag)
		if !ok {
			log.Fatalf("unknown tier %q", *tierFlag)
		}
		var rs *model.RestrictionSet
		if set := (&model.RestrictionSet{
			AllowedDomains: splitList(*domains),
			AllowedIPs:     splitList(*ips),
			HardwareID:     strings.TrimSpace(*hardware),
		}); !set.IsEmpty() {
			rs = set
		}
		for i := 0; i < *count; i++ {
			out, err := issuer.Issue(ctx, usecase.IssueInput{
				ProductID:       *product,
				CustomerID:      *customer,
				Tier:            tier,
				ActivationLimit: *limit,
				ExpiresAt:       expiry(*days),
				Restrictions:    rs,
			})
			if err != nil {
				log.Fatalf("issue: %v", err)
			}
			fmt.Printf("%s  %s  tier=%s limit=%d expires=%s\n",
				out.Credential.ID, out.Key, out.Credential.Tier, out.Credential.ActivationLimit, fmtExpiry(out.Credential.ExpiresAt))
		}
		return
	case "suspend":
		c, err = issuer.Suspend(ctx, *id)
	case "revoke":
		c, err = issuer.Revoke(ctx, *id)
	case "reactivate":
		c, err = issuer.Reactivate(ctx, *id)
	case "renew":
		exp := expiry(*days)
		if exp == nil {
			log.Fatal("renew needs -days > 0")
		}
		c, err = issuer.Renew(ctx, *id, *exp)
	case "reveal":
		key, err := issuer.RevealKey(ctx, *id)
		if err != nil {
			log.Fatalf("reveal: %v", err)
		}
		fmt.Println(key)
		return
	default:
		fmt.Fprintln(os.Stderr, "unknown action", *action)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", *action, err)
	}
	fmt.Printf("%s  status=%s expires=%s\n", c.ID, c.Status, fmtExpiry(c.ExpiresAt))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func expiry(days int) *time.Time {
	if days <= 0 {
		return nil
	}
	t := time.Now().UTC().AddDate(0, 0, days)
	return &t
}

func fmtExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
