package main

import (
	"fmt"

	"github.com/camster91/openclaw-hq/activity"
	"github.com/camster91/openclaw-hq/crm"
	"github.com/camster91/openclaw-hq/task"
)

// seed loads starter data into an empty database. A non-empty client table
// means the database is live and seeding is skipped.
func seed(crmStore *crm.SQLiteStore, tasks task.Store, activities *activity.Recorder) error {
	existing, err := crmStore.ListClients("")
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	clients := []*crm.Client{
		{Name: "PrintCup", Source: "upwork", Status: "active", Platform: "shopify",
			ShopifyStore: "printcup.myshopify.com",
			Notes:        "Shopify store: cart customization, product fees, Klaviyo email setup"},
		{Name: "Numan", Source: "direct", Status: "active", Platform: "wordpress",
			Notes: "Active design client with multiple projects in Notion"},
		{Name: "Della", Source: "direct", Status: "active", Platform: "wordpress",
			Notes: "Revisions and product pages"},
		{Name: "Brushamania", Source: "direct", Status: "active", Platform: "wordpress",
			Notes: "brushamania.ca maintenance"},
		{Name: "SplashTown Water Parks", ContactName: "Dereck S", Source: "direct",
			Status: "active", Platform: "wordpress",
			Notes: "Tournament manager app plus main website"},
		{Name: "Clypse Beauty", Source: "direct", Status: "completed", Platform: "wordpress",
			Notes: "Portfolio web design project"},
	}

	ids := make(map[string]int64, len(clients))
	for _, c := range clients {
		id, err := crmStore.CreateClient(c)
		if err != nil {
			return fmt.Errorf("seed client %s: %w", c.Name, err)
		}
		ids[c.Name] = id
		if c.Status == "active" {
			projectType := c.Platform
			if projectType != "shopify" && projectType != "wordpress" {
				projectType = "other"
			}
			if _, err := crmStore.CreateProject(&crm.Project{
				ClientID:    id,
				Name:        c.Name + " Ongoing",
				Description: c.Notes,
				Status:      "active",
				ProjectType: projectType,
			}); err != nil {
				return fmt.Errorf("seed project for %s: %w", c.Name, err)
			}
		}
	}

	printCup := ids["PrintCup"]
	numan := ids["Numan"]
	seedTasks := []*task.Task{
		{Title: "Run health check on all apps",
			Description: "Check tournament, ecard, budget, and ilm deployments",
			Priority:    task.PriorityHigh, Agent: "claw", Category: "infrastructure"},
		{Title: "PrintCup cart customization",
			Description: "Finish cart.liquid edits: product fees, setup fees, quantity breaks",
			Priority:    task.PriorityUrgent, Agent: "bernard", Category: "development",
			ClientID: &printCup},
		{Title: "Numan project revisions",
			Description: "Complete Rev 2 tasks from the Notion board",
			Priority:    task.PriorityHigh, Agent: "bernard", Category: "development",
			ClientID: &numan},
		{Title: "Write blog post: 5 WordPress Speed Tips",
			Description: "SEO post for the agency site",
			Priority:    task.PriorityMedium, Agent: "vale", Category: "content"},
		{Title: "Draft weekly client status updates",
			Description: "Prepare summaries for all active clients",
			Priority:    task.PriorityHigh, Agent: "gumbo", Category: "admin"},
	}
	for _, t := range seedTasks {
		if _, err := tasks.Create(t); err != nil {
			return fmt.Errorf("seed task %q: %w", t.Title, err)
		}
	}

	return activities.Append(&activity.Entry{
		Agent:  "system",
		Action: activity.ActionSeeded,
		Detail: "Initial data seeded",
	})
}
