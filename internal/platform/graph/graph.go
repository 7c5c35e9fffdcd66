// Package graph owns the Neo4j connection and schema bootstrap for the
// clinical graph. Repositories build their own sessions from the driver.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func NewDriver(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return driver, nil
}

// schemaStatements mirror the clinical data model: one uniqueness constraint
// per label's natural key. Each statement is idempotent.
var schemaStatements = []string{
	`CREATE CONSTRAINT clinic_id  IF NOT EXISTS FOR (c:Clinic)      REQUIRE c.cli_id IS UNIQUE`,
	`CREATE CONSTRAINT dept_id    IF NOT EXISTS FOR (d:Department)  REQUIRE d.dept_id IS UNIQUE`,
	`CREATE CONSTRAINT doctor_id  IF NOT EXISTS FOR (d:Doctor)      REQUIRE d.doctor_ID IS UNIQUE`,
	`CREATE CONSTRAINT patient_id IF NOT EXISTS FOR (p:Patient)     REQUIRE p.patient_ID IS UNIQUE`,
	`CREATE CONSTRAINT appt_id    IF NOT EXISTS FOR (a:Appointment) REQUIRE a.appoint_id IS UNIQUE`,
	`CREATE CONSTRAINT obser_id   IF NOT EXISTS FOR (o:Observation) REQUIRE o.obser_id IS UNIQUE`,
	`CREATE CONSTRAINT diagn_id   IF NOT EXISTS FOR (d:Diagnosis)   REQUIRE d.diagn_id IS UNIQUE`,
	`CREATE CONSTRAINT blob_ref   IF NOT EXISTS FOR (b:Blob)        REQUIRE b.ref IS UNIQUE`,
}

// EnsureSchema applies the uniqueness constraints. Safe to run repeatedly.
func EnsureSchema(ctx context.Context, driver neo4j.DriverWithContext) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("apply graph constraint: %w", err)
		}
	}
	return nil
}
