// booking-api is a standalone mock of the reservation system for local
// development. Point BOOKING_API_URL at it and any booking ID returns a
// confirmed booking with a two-student roster.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type student struct {
	ID            string `json:"id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	GuardianName  string `json:"guardian_name"`
	GuardianEmail string `json:"guardian_email"`
	GuardianPhone string `json:"guardian_phone"`
}

type booking struct {
	ID             string    `json:"id"`
	Reference      string    `json:"reference"`
	OrganizationID string    `json:"organization_id"`
	SchoolName     string    `json:"school_name"`
	ProgramTitle   string    `json:"program_title"`
	Status         string    `json:"status"`
	ActivityDate   string    `json:"activity_date"`
	ActivityTime   string    `json:"activity_time"`
	Students       []student `json:"students"`
}

func main() {
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/bookings/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/bookings/")
		if id == "" {
			http.NotFound(w, r)
			return
		}
		// "missing" simulates an unknown booking; "pending-" prefixed IDs
		// come back unconfirmed so rejection paths can be exercised.
		if id == "missing" {
			http.NotFound(w, r)
			return
		}
		status := "confirmed"
		if strings.HasPrefix(id, "pending-") {
			status = "pending"
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(booking{
			ID:             id,
			Reference:      "REF-" + id,
			OrganizationID: "org-1",
			SchoolName:     "Lincoln Elementary",
			ProgramTitle:   "Science Museum Field Trip",
			Status:         status,
			ActivityDate:   time.Now().AddDate(0, 0, 14).Format("2006-01-02"),
			ActivityTime:   "09:30",
			Students: []student{
				{
					ID:            id + "-s1",
					FirstName:     "Ava",
					LastName:      "Martin",
					GuardianName:  "Dana Martin",
					GuardianEmail: "dana.martin@example.com",
					GuardianPhone: "555-0101",
				},
				{
					ID:            id + "-s2",
					FirstName:     "Leo",
					LastName:      "Nguyen",
					GuardianEmail: "kim.nguyen@example.com",
					GuardianPhone: "555-0102",
				},
			},
		})
	})

	log.Printf("mock booking API listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}
