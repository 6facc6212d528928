// Package deploy holds the domain model of the deploy history:
// who shipped which release where, and when.
package deploy
