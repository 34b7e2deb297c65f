package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		itemMassPolicy(),
		usageLimitPolicy(),
		priorityRangePolicy(),
		containerZonePolicy(),
		expiredOnArrivalPolicy(),
	}
}

func builtin(name, description string, severity Severity, tags []string, rego string) Policy {
	now := time.Now()
	return Policy{
		Name:        name,
		Description: description,
		Severity:    severity,
		Enabled:     true,
		Builtin:     true,
		Tags:        tags,
		LoadedAt:    now,
		Rego:        rego,
	}
}

// itemMassPolicy rejects items no container could ever hold.
func itemMassPolicy() Policy {
	return builtin("item-mass",
		"Rejects items heavier than the per-container mass limit",
		SeverityError,
		[]string{"items", "capacity"},
		`package stowage.policies.mass

import rego.v1

deny contains violation if {
	some item in input.items
	item.mass > input.limits.max_mass
	violation := {
		"message": sprintf("Item %s mass %v kg exceeds the container mass limit of %v kg", [item.item_id, item.mass, input.limits.max_mass]),
		"severity": "error",
		"record": item.item_id,
	}
}`)
}

// usageLimitPolicy rejects negative usage limits.
func usageLimitPolicy() Policy {
	return builtin("usage-limit",
		"Rejects items with a negative usage limit",
		SeverityError,
		[]string{"items"},
		`package stowage.policies.usage

import rego.v1

deny contains violation if {
	some item in input.items
	item.usage_limit < 0
	violation := {
		"message": sprintf("Item %s has negative usage limit %d", [item.item_id, item.usage_limit]),
		"severity": "error",
		"record": item.item_id,
	}
}`)
}

// priorityRangePolicy warns about priorities outside 0..100.
func priorityRangePolicy() Policy {
	return builtin("priority-range",
		"Warns about item priorities outside 0 to 100",
		SeverityWarning,
		[]string{"items", "scoring"},
		`package stowage.policies.priority

import rego.v1

deny contains violation if {
	some item in input.items
	not valid_priority(item.priority)
	violation := {
		"message": sprintf("Item %s priority %d is outside 0..100", [item.item_id, item.priority]),
		"severity": "warning",
		"record": item.item_id,
	}
}

valid_priority(p) if {
	p >= 0
	p <= 100
}`)
}

// containerZonePolicy warns about containers no item can prefer.
func containerZonePolicy() Policy {
	return builtin("container-zone",
		"Warns about containers without a zone",
		SeverityWarning,
		[]string{"containers", "scoring"},
		`package stowage.policies.zone

import rego.v1

deny contains violation if {
	some container in input.containers
	trim_space(container.zone) == ""
	violation := {
		"message": sprintf("Container %s has no zone and never earns the zone bonus", [container.container_id]),
		"severity": "warning",
		"record": container.container_id,
	}
}`)
}

// expiredOnArrivalPolicy warns about items that are already waste.
func expiredOnArrivalPolicy() Policy {
	return builtin("expired-on-arrival",
		"Warns about items whose expiry date has already passed",
		SeverityWarning,
		[]string{"items", "waste"},
		`package stowage.policies.expiry

import rego.v1

deny contains violation if {
	some item in input.items
	regex.match("^[0-9]{4}-[0-9]{2}-[0-9]{2}$", item.expiry_date)
	item.expiry_date <= input.context.today
	violation := {
		"message": sprintf("Item %s expired on %s and will be identified as waste", [item.item_id, item.expiry_date]),
		"severity": "warning",
		"record": item.item_id,
	}
}`)
}
