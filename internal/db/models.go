package db

import "github.com/restitch/restitch/internal/models"

type User = models.User
type PickupRequest = models.PickupRequest
type Order = models.Order
type Product = models.Product
type ActivityLog = models.ActivityLog
type DesignerApplication = models.DesignerApplication
