package api

import (
    "fmt"
    "net/url"

    "stocklane/internal/model"
)

func validateSubscriptionRequest(req *model.SubscriptionRequest) error {
    if req.URL == "" {
        return fmt.Errorf("url is required")
    }
    if u, err := url.Parse(req.URL); err != nil || u.Scheme == "" || u.Host == "" {
        return fmt.Errorf("url must be absolute: %s", req.URL)
    }
    if len(req.Events) == 0 {
        return fmt.Errorf("events must not be empty")
    }
    return validateEventTypes(req.Events)
}

func validateEventTypes(events []string) error {
    for _, e := range events {
        if !model.ValidEventType(e) {
            return fmt.Errorf("unknown event type: %s", e)
        }
    }
    return nil
}
