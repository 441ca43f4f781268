package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/datasource"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/entrypoint"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/services"
	"github.com/mrlokans/librarian/internal/storage"
)

// Shell is the interactive console. Errors are printed and the loop goes on.
type Shell struct {
	app     *entrypoint.App
	p       *prompter
	session datasource.Session
	user    *entities.User
	now     func() time.Time
}

func NewShell(app *entrypoint.App, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		app: app,
		p:   newPrompter(in, out),
		now: time.Now,
	}
}

type menuItem struct {
	label  string
	action func(ctx context.Context)
}

// Run shows menus until the user exits or input ends.
func (s *Shell) Run(ctx context.Context) error {
	s.p.say("Library Management System (%s data source)", s.app.Selector.Kind())
	for {
		var title string
		var items []menuItem
		switch {
		case s.user == nil:
			title, items = "Main Menu", s.guestMenu()
		case s.user.IsAdmin():
			title, items = "Admin Menu ("+s.user.Username+")", s.adminMenu()
		default:
			title, items = "User Menu ("+s.user.Username+")", s.userMenu()
		}

		s.p.say("\n=== %s ===", title)
		for i, item := range items {
			s.p.say("%d. %s", i+1, item.label)
		}
		s.p.say("0. Exit")

		choice, ok := s.p.ask("Select an option: ")
		if !ok || choice == "0" {
			s.p.say("Goodbye!")
			return nil
		}
		n, err := strconv.Atoi(choice)
		if err != nil || n < 1 || n > len(items) {
			s.p.say("Invalid option.")
			continue
		}
		items[n-1].action(ctx)
	}
}

func (s *Shell) guestMenu() []menuItem {
	return []menuItem{
		{"Login", s.login},
		{"Register", s.register},
		{"Switch Data Source", s.switchDataSource},
	}
}

func (s *Shell) adminMenu() []menuItem {
	return []menuItem{
		{"List Books", s.listBooks},
		{"Search Books", s.searchBooks},
		{"Add Book", s.addBook},
		{"Edit Book", s.editBook},
		{"Delete Book", s.deleteBook},
		{"Manage Loan Requests", s.manageRequests},
		{"Lend Book", s.lendBook},
		{"Manage Returns", s.manageReturns},
		{"View All Users", s.listUsers},
		{"Switch Data Source", s.switchDataSource},
		{"Logout", s.logout},
	}
}

func (s *Shell) userMenu() []menuItem {
	return []menuItem{
		{"List Available Books", s.listAvailableBooks},
		{"Search Books", s.searchBooks},
		{"Send Loan Request", s.requestLoan},
		{"My Borrowed Books", s.borrowedBooks},
		{"Return Book", s.returnBook},
		{"Borrowing History", s.history},
		{"Change Password", s.changePassword},
		{"Switch Data Source", s.switchDataSource},
		{"Logout", s.logout},
	}
}

func (s *Shell) fail(err error) {
	s.p.say("Error: %v", err)
}

func (s *Shell) login(ctx context.Context) {
	username, ok := s.p.ask("Username: ")
	if !ok {
		return
	}
	password, ok := s.p.askPassword("Password: ")
	if !ok {
		return
	}
	user, err := s.app.Auth.Authenticate(ctx, username, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.p.say("Invalid username or password.")
		return
	}
	if err != nil {
		s.fail(err)
		return
	}
	s.user = user
	s.session.UserID = user.ID
	s.p.say("Login successful! Welcome, %s.", user.Username)
}

func (s *Shell) register(ctx context.Context) {
	username, ok := s.p.ask("Username: ")
	if !ok {
		return
	}
	password, ok := s.p.askPassword("Password: ")
	if !ok {
		return
	}
	s.p.say("1. Normal User")
	s.p.say("2. Admin")
	choice, ok := s.p.ask("Choose role (1-2): ")
	if !ok {
		return
	}
	role := entities.UserRoleRegular
	if choice == "2" {
		role = entities.UserRoleAdmin
	}
	user, err := s.app.Auth.Register(ctx, username, password, role)
	if err != nil {
		s.fail(err)
		return
	}
	s.p.say("Registration successful! User %s created as %s. You can now login.", user.Username, user.Role)
}

func (s *Shell) logout(context.Context) {
	s.user = nil
	s.session.Clear()
	s.p.say("Logged out.")
}

func (s *Shell) switchDataSource(ctx context.Context) {
	s.p.say("Current data source: %s", s.app.Selector.Kind())
	s.p.say("1. File (JSON)")
	s.p.say("2. Relational database")
	choice, ok := s.p.ask("Select new data source: ")
	if !ok {
		return
	}
	var kind storage.Kind
	switch choice {
	case "1":
		kind = storage.KindFile
	case "2":
		kind = storage.KindRelational
	default:
		s.p.say("Invalid option.")
		return
	}
	if kind == s.app.Selector.Kind() {
		s.p.say("You're already using this data source.")
		return
	}

	user, err := s.app.Selector.Switch(ctx, kind, &s.session)
	switch {
	case errors.Is(err, datasource.ErrSessionInvalid):
		s.user = nil
		s.p.say("Switched to %s.", kind)
		if storage.IsStorageFailure(err) {
			s.p.say("Warning: your account could not be loaded (%v). Please login again.", err)
		} else {
			s.p.say("Warning: your account does not exist on this data source. Please login again.")
		}
	case err != nil:
		s.p.say("Failed to switch data source: %v", err)
		s.p.say("Continuing with the current data source.")
	default:
		if user != nil {
			s.user = user
		}
		s.p.say("Switched to %s.", kind)
	}
}

func (s *Shell) printBooks(books []entities.Book) {
	if len(books) == 0 {
		s.p.say("No books found.")
		return
	}
	for _, b := range books {
		s.p.say("%-20s %-40s %-25s %4d  %s", isbnOrDash(b.ISBNValue()), b.Title, b.Author, b.PublicationYear, b.Status)
	}
}

func (s *Shell) listBooks(ctx context.Context) {
	books, err := s.app.Catalog.ListBooks(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	s.printBooks(books)
}

func (s *Shell) listAvailableBooks(ctx context.Context) {
	books, err := s.app.Loans.AvailableBooks(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	s.printBooks(books)
}

func (s *Shell) searchBooks(ctx context.Context) {
	term, ok := s.p.ask("Search term: ")
	if !ok {
		return
	}
	books, err := s.app.Catalog.SearchBooks(ctx, term)
	if err != nil {
		s.fail(err)
		return
	}
	s.printBooks(books)
}

func (s *Shell) addBook(ctx context.Context) {
	title, ok := s.p.ask("Title: ")
	if !ok {
		return
	}
	author, ok := s.p.ask("Author: ")
	if !ok {
		return
	}
	yearText, ok := s.p.ask("Publication year: ")
	if !ok {
		return
	}
	year, err := strconv.Atoi(yearText)
	if err != nil {
		s.p.say("Invalid year: %s", yearText)
		return
	}
	isbn, ok := s.p.ask("ISBN (optional): ")
	if !ok {
		return
	}
	book, err := s.app.Catalog.AddBook(ctx, title, author, year, isbn)
	if err != nil {
		s.fail(err)
		return
	}
	s.p.say("Book %q added.", book.Title)
}

func (s *Shell) editBook(ctx context.Context) {
	isbn, ok := s.p.ask("ISBN of the book to edit: ")
	if !ok {
		return
	}
	book, err := s.app.Catalog.GetBookByISBN(ctx, isbn)
	if err != nil {
		s.fail(err)
		return
	}
	s.p.say("Leave a field empty to keep it.")

	var update services.BookUpdate
	if title, ok := s.p.ask(fmt.Sprintf("Title [%s]: ", book.Title)); !ok {
		return
	} else if title != "" {
		update.Title = &title
	}
	if author, ok := s.p.ask(fmt.Sprintf("Author [%s]: ", book.Author)); !ok {
		return
	} else if author != "" {
		update.Author = &author
	}
	if yearText, ok := s.p.ask(fmt.Sprintf("Publication year [%d]: ", book.PublicationYear)); !ok {
		return
	} else if yearText != "" {
		year, err := strconv.Atoi(yearText)
		if err != nil {
			s.p.say("Invalid year: %s", yearText)
			return
		}
		update.PublicationYear = &year
	}

	if _, err := s.app.Catalog.UpdateBook(ctx, isbn, update); err != nil {
		s.fail(err)
		return
	}
	s.p.say("Book updated.")
}

func (s *Shell) deleteBook(ctx context.Context) {
	isbn, ok := s.p.ask("ISBN of the book to delete: ")
	if !ok {
		return
	}
	if err := s.app.Catalog.DeleteBook(ctx, isbn); err != nil {
		s.fail(err)
		return
	}
	s.p.say("Book deleted.")
}

func (s *Shell) requestLoan(ctx context.Context) {
	isbn, ok := s.p.ask("ISBN of the book to borrow: ")
	if !ok {
		return
	}
	if _, err := s.app.Loans.RequestLoan(ctx, s.user.ID, isbn); err != nil {
		s.fail(err)
		return
	}
	s.p.say("Loan request sent. An administrator will review it.")
}

func (s *Shell) borrowedBooks(ctx context.Context) {
	books, err := s.app.Loans.BorrowedBooks(ctx, s.user.ID)
	if err != nil {
		s.fail(err)
		return
	}
	s.printBooks(books)
}

func (s *Shell) returnBook(ctx context.Context) {
	isbn, ok := s.p.ask("ISBN of the book to return: ")
	if !ok {
		return
	}
	if _, err := s.app.Loans.ReturnBook(ctx, s.user.ID, isbn); err != nil {
		s.fail(err)
		return
	}
	s.p.say("Book returned.")
}

func (s *Shell) history(ctx context.Context) {
	records, err := s.app.Loans.BorrowingHistory(ctx, s.user.ID)
	if err != nil {
		s.fail(err)
		return
	}
	if len(records) == 0 {
		s.p.say("No loans yet.")
		return
	}
	now := s.now()
	for _, r := range records {
		title := r.BookID
		if book, err := s.app.Catalog.GetBookByID(ctx, r.BookID); err == nil {
			title = book.Title
		}
		status := string(r.Status)
		if r.IsOverdue(now) {
			status = fmt.Sprintf("Overdue by %d day(s)", r.DaysOverdue(now))
		}
		s.p.say("%-40s borrowed %s, due %s, %s", title, r.BorrowedAt.Format("2006-01-02"), r.DueAt.Format("2006-01-02"), status)
	}
}

func (s *Shell) changePassword(ctx context.Context) {
	oldPassword, ok := s.p.askPassword("Current password: ")
	if !ok {
		return
	}
	newPassword, ok := s.p.askPassword("New password: ")
	if !ok {
		return
	}
	if err := s.app.Auth.ChangePassword(ctx, s.user.ID, oldPassword, newPassword); err != nil {
		s.fail(err)
		return
	}
	s.p.say("Password changed.")
}

func (s *Shell) manageRequests(ctx context.Context) {
	requests, err := s.app.Loans.PendingRequests(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	if len(requests) == 0 {
		s.p.say("No pending requests.")
		return
	}
	for i, r := range requests {
		s.p.say("%d. %s wants %q (requested %s)", i+1, s.username(ctx, r.UserID), s.bookTitle(ctx, r.BookID), r.RequestedAt.Format("2006-01-02 15:04"))
	}
	s.p.say("1. Approve a request")
	s.p.say("2. Reject a request")
	s.p.say("0. Back to main menu")
	choice, ok := s.p.ask("Select an option: ")
	if !ok || (choice != "1" && choice != "2") {
		return
	}
	numberText, ok := s.p.ask("Request number: ")
	if !ok {
		return
	}
	n, err := strconv.Atoi(numberText)
	if err != nil || n < 1 || n > len(requests) {
		s.p.say("Invalid request number.")
		return
	}
	request := requests[n-1]

	if choice == "1" {
		if _, err := s.app.Loans.ApproveRequest(ctx, request.ID, s.user.ID); err != nil {
			s.fail(err)
			return
		}
		s.p.say("Request approved. The book is now lent out.")
		return
	}
	if err := s.app.Loans.RejectRequest(ctx, request.ID, s.user.ID); err != nil {
		s.fail(err)
		return
	}
	s.p.say("Request rejected.")
}

func (s *Shell) lendBook(ctx context.Context) {
	username, ok := s.p.ask("Borrower username: ")
	if !ok {
		return
	}
	isbn, ok := s.p.ask("ISBN: ")
	if !ok {
		return
	}
	borrower, err := s.app.Auth.GetUserByUsername(ctx, username)
	if err != nil {
		s.fail(err)
		return
	}
	record, err := s.app.Loans.LendBook(ctx, s.user.ID, borrower.ID, isbn)
	if err != nil {
		s.fail(err)
		return
	}
	s.p.say("Book lent to %s, due %s.", borrower.Username, record.DueAt.Format("2006-01-02"))
}

func (s *Shell) manageReturns(ctx context.Context) {
	loans, err := s.app.Loans.ActiveLoans(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	if len(loans) == 0 {
		s.p.say("No books are on loan.")
	}
	for _, l := range loans {
		s.p.say("%-20s %-40s %-15s due %s", isbnOrDash(l.Book.ISBNValue()), l.Book.Title, l.Borrower.Username, l.Record.DueAt.Format("2006-01-02"))
	}
	s.p.say("1. Process book return")
	s.p.say("2. View overdue books")
	s.p.say("0. Back to main menu")
	choice, ok := s.p.ask("Select an option: ")
	if !ok {
		return
	}
	switch choice {
	case "1":
		username, ok := s.p.ask("Borrower username: ")
		if !ok {
			return
		}
		isbn, ok := s.p.ask("ISBN: ")
		if !ok {
			return
		}
		if _, err := s.app.Loans.ReturnBookFor(ctx, s.user.ID, username, isbn); err != nil {
			s.fail(err)
			return
		}
		s.p.say("Return recorded.")
	case "2":
		now := s.now()
		overdue, err := s.app.Loans.OverdueLoans(ctx, now)
		if err != nil {
			s.fail(err)
			return
		}
		if err := scheduler.WriteReport(s.p.out, &scheduler.Report{GeneratedAt: now, Loans: overdue}); err != nil {
			s.fail(err)
		}
	}
}

func (s *Shell) listUsers(ctx context.Context) {
	users, err := s.app.Auth.ListUsers(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	for _, u := range users {
		s.p.say("%-20s %-12s registered %s", u.Username, u.Role, u.CreatedAt.Format("2006-01-02"))
	}
}

func (s *Shell) username(ctx context.Context, id string) string {
	if u, err := s.app.Auth.GetUserByID(ctx, id); err == nil {
		return u.Username
	}
	return id
}

func (s *Shell) bookTitle(ctx context.Context, id string) string {
	if b, err := s.app.Catalog.GetBookByID(ctx, id); err == nil {
		return b.Title
	}
	return id
}

func isbnOrDash(isbn string) string {
	if isbn == "" {
		return "-"
	}
	return isbn
}
