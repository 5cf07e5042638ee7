package chat

// Placeholder is the text of the message that is edited into the answer.
const Placeholder = "..."

// Disclaimer is appended to the final edit of a reply that used a session.
// It is shown only, never stored.
const Disclaimer = "\n\n\nYou are chat me with a context, please remember to use /end command to stop the conversation."

// User-facing replies.
const (
	HelpText = "Hello, I'm a smart chatbot powered by ChatGPT.\n" +
		"I have prepared some interesting commands for you:\n\n" +
		"/start: Start a new conversation with a context\n\n" +
		"/end: Finish current conversation\n\n" +
		"/image: Enter a prompt, I can generate a realistic image for you, the image will be saved in the database\n" +
		"Example: /image a lovely cat\n\n" +
		"/image_log: List the history of generated images.\n\n" +
		"/image_review: Enter an id of a image record, you can check the generated image again\n" +
		"Example: /image_review 4\n\n" +
		"/image_del: Delete an image record from database"

	StartReply = "Hello, what can I do for you?"
	EndReply   = "Good bye~~"

	ImagePromptMissing = "Please enter a prompt"
	ImageCaption       = "Here is the picture generating for you. I already save it in database, you can type /image_log to ckeck the history.\n"

	ImageLogHeader = "Here are the image records:\n"
	ImageLogFooter = "\n\nYou can use /image_review command to check an image record." +
		"\nYou can use /image_del command to delete an image record."

	DatabaseFailed = "Something wrong with database!"

	ReviewMissingID = "Please Enter the id of an image record!"
	ReviewBadID     = "To review an image, please enter the id of it, use /image_log command to check the id."
	ReviewCaption   = "Here is the image you want review.\n"
	RecordNotFound  = "I'm sorry, I can't find this record..."

	DeleteBadID  = "To delete an image record, please enter the id of it."
	DeleteOK     = "Successfully delete an image record!"
	DeleteFailed = "Failed to delete an item, please try again!"

	ImagesDisabled = "Image generation is not enabled."
)
