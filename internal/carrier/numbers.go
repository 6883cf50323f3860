// smsbridge - SMS conversation mediation service
// Copyright (C) 2025  smsbridge contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

package carrier

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// PhoneNumber describes one number in the account inventory or in the
// purchasable pool.
type PhoneNumber struct {
	SID          string          `json:"sid,omitempty"`
	PhoneNumber  string          `json:"phone_number"`
	FriendlyName string          `json:"friendly_name"`
	Locality     string          `json:"locality,omitempty"`
	Region       string          `json:"region,omitempty"`
	Status       string          `json:"status,omitempty"`
	Capabilities map[string]bool `json:"capabilities"`
}

type availableNumbersPage struct {
	AvailablePhoneNumbers []struct {
		PhoneNumber  string `json:"phone_number"`
		FriendlyName string `json:"friendly_name"`
		Locality     string `json:"locality"`
		Region       string `json:"region"`
		Capabilities struct {
			Voice bool `json:"voice"`
			SMS   bool `json:"SMS"`
			MMS   bool `json:"MMS"`
		} `json:"capabilities"`
	} `json:"available_phone_numbers"`
}

type incomingNumbersPage struct {
	IncomingPhoneNumbers []incomingNumber `json:"incoming_phone_numbers"`
}

type incomingNumber struct {
	SID          string `json:"sid"`
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name"`
	Status       string `json:"status"`
	Capabilities struct {
		Voice bool `json:"voice"`
		SMS   bool `json:"sms"`
		MMS   bool `json:"mms"`
	} `json:"capabilities"`
}

// SearchNumbers lists purchasable local numbers for a country, optionally
// filtered by area code.
func (t *Twilio) SearchNumbers(ctx context.Context, countryCode, areaCode string, limit int) ([]PhoneNumber, error) {
	if countryCode == "" {
		countryCode = "US"
	}
	if limit <= 0 {
		limit = 10
	}

	q := url.Values{}
	q.Set("PageSize", strconv.Itoa(limit))
	if areaCode != "" {
		q.Set("AreaCode", areaCode)
	}

	var page availableNumbersPage
	path := "/AvailablePhoneNumbers/" + url.PathEscape(countryCode) + "/Local.json?" + q.Encode()
	if err := t.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}

	numbers := make([]PhoneNumber, 0, len(page.AvailablePhoneNumbers))
	for _, n := range page.AvailablePhoneNumbers {
		numbers = append(numbers, PhoneNumber{
			PhoneNumber:  n.PhoneNumber,
			FriendlyName: n.FriendlyName,
			Locality:     n.Locality,
			Region:       n.Region,
			Capabilities: map[string]bool{
				"voice": n.Capabilities.Voice,
				"sms":   n.Capabilities.SMS,
				"mms":   n.Capabilities.MMS,
			},
		})
	}
	return numbers, nil
}

// ListNumbers returns the numbers currently provisioned on the account.
func (t *Twilio) ListNumbers(ctx context.Context) ([]PhoneNumber, error) {
	var page incomingNumbersPage
	if err := t.do(ctx, http.MethodGet, "/IncomingPhoneNumbers.json", nil, &page); err != nil {
		return nil, err
	}

	numbers := make([]PhoneNumber, 0, len(page.IncomingPhoneNumbers))
	for _, n := range page.IncomingPhoneNumbers {
		numbers = append(numbers, phoneNumberFromIncoming(n))
	}
	return numbers, nil
}

// PurchaseNumber buys a number from the available pool. This consumes
// carrier credits.
func (t *Twilio) PurchaseNumber(ctx context.Context, phoneNumber, friendlyName string) (*PhoneNumber, error) {
	if friendlyName == "" {
		friendlyName = phoneNumber
	}

	form := url.Values{}
	form.Set("PhoneNumber", phoneNumber)
	form.Set("FriendlyName", friendlyName)

	var n incomingNumber
	if err := t.do(ctx, http.MethodPost, "/IncomingPhoneNumbers.json", form, &n); err != nil {
		return nil, err
	}
	purchased := phoneNumberFromIncoming(n)
	return &purchased, nil
}

// ReleaseNumber removes a provisioned number from the account by SID.
func (t *Twilio) ReleaseNumber(ctx context.Context, sid string) error {
	return t.do(ctx, http.MethodDelete, "/IncomingPhoneNumbers/"+url.PathEscape(sid)+".json", nil, nil)
}

func phoneNumberFromIncoming(n incomingNumber) PhoneNumber {
	return PhoneNumber{
		SID:          n.SID,
		PhoneNumber:  n.PhoneNumber,
		FriendlyName: n.FriendlyName,
		Status:       n.Status,
		Capabilities: map[string]bool{
			"voice": n.Capabilities.Voice,
			"sms":   n.Capabilities.SMS,
			"mms":   n.Capabilities.MMS,
		},
	}
}
