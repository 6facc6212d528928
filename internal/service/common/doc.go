// Package common holds helpers shared by the deploy services: actor
// detection for the audit trail and the external command runner.
package common
