// Package entities holds the value types shared by every layer of the platform:
// capability descriptors and recipes, policy decisions, checkpoints, lifecycle
// events and install results. Entities carry no behavior beyond small helpers.
package entities
