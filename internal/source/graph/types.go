package graph

// messageList is the response of a mail folder listing.
type messageList struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink,omitempty"`
}

type graphMessage struct {
	ID                   string      `json:"id"`
	Subject              string      `json:"subject"`
	From                 *recipient  `json:"from"`
	ToRecipients         []recipient `json:"toRecipients"`
	Body                 *itemBody   `json:"body"`
	BodyPreview          string      `json:"bodyPreview"`
	ReceivedDateTime     string      `json:"receivedDateTime"`
	LastModifiedDateTime string      `json:"lastModifiedDateTime,omitempty"`
	IsDraft              bool        `json:"isDraft"`
	ConversationID       string      `json:"conversationId"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// outgoingMessage is the writable subset of a Graph message.
type outgoingMessage struct {
	Subject      string      `json:"subject,omitempty"`
	Body         *itemBody   `json:"body,omitempty"`
	ToRecipients []recipient `json:"toRecipients,omitempty"`
}

type sendMailRequest struct {
	Message         outgoingMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

type replyRequest struct {
	Message outgoingMessage `json:"message"`
	Comment string          `json:"comment,omitempty"`
}

// me is the response of GET /me.
type me struct {
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
