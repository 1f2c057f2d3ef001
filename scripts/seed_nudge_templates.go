//go:build ignore

// Seeds the default buy-back nudge templates, one per channel.
//
//	DATABASE_URL=... go run scripts/seed_nudge_templates.go
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/repository/postgres"
	"github.com/ignite/dormant-leads/internal/service/campaign"
)

var templates = []domain.MessageTemplate{
	{
		Name:    "Buy-back nudge (SMS)",
		Channel: domain.ChannelSMS,
		Body:    "New phone? Your old one could be worth {{ estimated_value | currency | default: \"cash\" }}. Trade it in: {{ tracking_url }}",
		Variants: map[string]string{
			"short": "Turn your old phone into cash: {{ tracking_url }}",
		},
	},
	{
		Name:    "Buy-back nudge (email)",
		Channel: domain.ChannelEmail,
		Subject: "Your previous phone is still worth something",
		Body: `<p>Hi {{ first_name | default: "there" }},</p>
<p>It looks like you switched phones recently. We buy back the old one
{% if estimated_value %}for up to {{ estimated_value | currency }}{% else %}at a fair price{% endif %}.</p>
<p><a href="{{ tracking_url }}">Get my quote</a></p>`,
	},
	{
		Name:    "Buy-back nudge (push)",
		Channel: domain.ChannelPush,
		Body:    "Your old phone is waiting for a second life. Get a trade-in quote in {{ activation_window_days }} days or less.",
	},
}

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc := campaign.NewService(nil, campaign.Options{Templates: postgres.NewTemplateRepo(db)})
	for i := range templates {
		t := templates[i]
		if err := svc.CreateTemplate(ctx, &t); err != nil {
			log.Fatalf("seed %q: %v", t.Name, err)
		}
		log.Printf("Seeded %s template %s (%s)", t.Channel, t.ID, t.Name)
	}
}
