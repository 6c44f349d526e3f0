package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/internal/services"
)

// Recomputes due dates for active questionnaires after the
// due_date_business_days setting changed. Run once, then restart the server.
func main() {
	businessDays := flag.Int("days", 35, "business days from report date to due date")
	dryRun := flag.Bool("dry-run", false, "print changes without writing them")
	flag.Parse()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := models.InitDB(&cfg.Database); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	db := models.GetDB()

	fmt.Println("Connected to database successfully!")
	fmt.Println("")

	var active []models.Questionnaire
	if err := db.Where("status = ?", models.QuestionnaireActive).Find(&active).Error; err != nil {
		log.Fatalf("Failed to query questionnaires: %v", err)
	}

	fmt.Printf("Active questionnaires: %d (recomputing with %d business days)\n", len(active), *businessDays)
	fmt.Printf("%-36s %-8s %-12s %-12s %-12s\n", "ID", "Country", "ReportDate", "OldDue", "NewDue")
	fmt.Println("----------------------------------------------------------------------------------------")

	dueDates := services.NewDueDateService(*businessDays)
	updated := 0
	for _, qn := range active {
		reportDate, err := time.Parse("2006-01-02", qn.ReportDate)
		if err != nil {
			log.Printf("Skipping %s: bad report_date %q", qn.ID, qn.ReportDate)
			continue
		}

		newDue := dueDates.DueDate(qn.Country, reportDate)
		oldDue := "-"
		if qn.DueDate != nil {
			if qn.DueDate.Equal(newDue) {
				continue
			}
			oldDue = qn.DueDate.Format("2006-01-02")
		}

		fmt.Printf("%-36s %-8s %-12s %-12s %-12s\n",
			qn.ID, qn.Country, qn.ReportDate, oldDue, newDue.Format("2006-01-02"))

		if !*dryRun {
			if err := db.Model(&models.Questionnaire{}).
				Where("id = ?", qn.ID).
				Update("due_date", newDue).Error; err != nil {
				log.Fatalf("Failed to update %s: %v", qn.ID, err)
			}
		}
		updated++
	}

	fmt.Println("")
	if *dryRun {
		fmt.Printf("Dry run: %d questionnaires would change\n", updated)
		return
	}
	fmt.Printf("Updated %d questionnaires\n", updated)
}
